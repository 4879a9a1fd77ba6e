// Package repl implements the interactive terminal chat.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/xiaot623/viper/internal/chat"
	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/session"
)

const helpText = `Commands:
  /new [title]     start a new chat
  /list            list chats
  /switch <n|id>   switch to a chat by list number or id
  /delete [n|id]   delete a chat (default: the current one)
  /retry           regenerate the last reply
  /continue        continue the last reply
  /title <text>    rename the current chat
  /usage           show the context estimate
  /help            show this help
  /exit            quit
Anything else is sent as a message. Ctrl-C stops a reply in progress.`

var errExit = errors.New("exit")

// REPL reads lines, runs them as messages or commands, and prints replies as they stream.
type REPL struct {
	orch   *chat.Orchestrator
	store  *session.Store
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	watchID string // assistant message being echoed
	printed int    // bytes of watchID already written
}

// New creates a REPL.
func New(orch *chat.Orchestrator, store *session.Store, in io.Reader, out io.Writer, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{orch: orch, store: store, in: in, out: out, logger: logger}
}

// Interrupt stops the reply in progress. It reports false when nothing was streaming.
func (r *REPL) Interrupt() bool {
	return r.orch.Stop()
}

// Run processes input until /exit, end of input or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	unsubscribe := r.store.Subscribe(r.onEvent)
	defer unsubscribe()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	r.printHeader()
	for {
		r.prompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			fmt.Fprintln(r.out)
			return err
		case line := <-lines:
			if err := r.handle(ctx, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errExit) {
					return nil
				}
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
	}
}

func (r *REPL) handle(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/exit", "/quit":
		return errExit
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/new":
		info, err := r.store.Create(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Started %q\n", info.Title)
	case "/list":
		r.list()
	case "/switch":
		id, err := r.resolve(arg)
		if err != nil {
			return err
		}
		if err := r.store.Select(ctx, id); err != nil {
			return err
		}
		r.printHistory(id)
	case "/delete":
		id := r.store.Active()
		if arg != "" {
			var err error
			if id, err = r.resolve(arg); err != nil {
				return err
			}
		}
		if id == "" {
			return session.ErrSessionNotFound
		}
		if err := r.store.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Deleted.")
	case "/retry", "/continue":
		return r.restart(ctx, cmd == "/continue")
	case "/title":
		id := r.store.Active()
		if id == "" || arg == "" {
			return fmt.Errorf("usage: /title <text>")
		}
		return r.store.PatchSession(ctx, id, domain.SessionPatch{Title: &arg})
	case "/usage":
		usage, err := r.orch.ContextUsage(ctx, r.store.Active())
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Context: %d / %d tokens (%.1f%%)\n", usage.Tokens, usage.Budget, usage.Percent)
	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return nil
}

func (r *REPL) send(ctx context.Context, text string) error {
	res, err := r.orch.Send(ctx, text)
	if err != nil {
		return err
	}
	r.finish(res)
	return nil
}

func (r *REPL) restart(ctx context.Context, cont bool) error {
	sessionID := r.store.Active()
	messageID := lastAssistant(r.store.Messages(sessionID))
	if messageID == "" {
		return fmt.Errorf("no reply yet")
	}

	var res chat.Result
	var err error
	if cont {
		res, err = r.orch.Continue(ctx, sessionID, messageID)
	} else {
		res, err = r.orch.Retry(ctx, sessionID, messageID)
	}
	if err != nil {
		return err
	}
	r.finish(res)
	return nil
}

func (r *REPL) finish(res chat.Result) {
	r.watch("", 0)
	fmt.Fprintln(r.out)
	switch res.Status {
	case domain.MessageStatusAborted:
		if res.Error != "" {
			fmt.Fprintf(r.out, "[stopped: %s]\n", res.Error)
		} else {
			fmt.Fprintln(r.out, "[stopped]")
		}
	case domain.MessageStatusError:
		fmt.Fprintf(r.out, "[error] %s\n", res.Error)
	}
}

func (r *REPL) watch(id string, printed int) {
	r.mu.Lock()
	r.watchID, r.printed = id, printed
	r.mu.Unlock()
}

// onEvent echoes new text of the streaming assistant message.
func (r *REPL) onEvent(e session.Event) {
	if e.Kind != session.EventMessageUpdated && e.Kind != session.EventMessageAdded {
		return
	}
	active, ok := r.orch.Active()
	if !ok || active.AssistantMessageID != e.MessageID {
		return
	}
	msg, ok := r.store.Message(e.SessionID, e.MessageID)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchID != e.MessageID {
		r.watchID, r.printed = e.MessageID, 0
		if active.Mode == domain.ModeContinue {
			r.printed = len(msg.Content)
		}
	}
	if len(msg.Content) < r.printed {
		// A retry cleared the message.
		r.printed = 0
	}
	if len(msg.Content) > r.printed {
		io.WriteString(r.out, msg.Content[r.printed:])
		r.printed = len(msg.Content)
	}
}

func (r *REPL) list() {
	active := r.store.Active()
	sessions := r.store.List()
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, "No chats yet.")
		return
	}
	for i, s := range sessions {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %2d. %s  (%s)\n", marker, i+1, s.Title, s.ID)
	}
}

// resolve accepts a 1-based position in /list or a session id.
func (r *REPL) resolve(arg string) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("missing chat number or id")
	}
	sessions := r.store.List()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(sessions) {
		return sessions[n-1].ID, nil
	}
	if _, ok := r.store.Session(arg); ok {
		return arg, nil
	}
	return "", session.ErrSessionNotFound
}

func (r *REPL) printHeader() {
	id := r.store.Active()
	if id == "" {
		fmt.Fprintln(r.out, "viper: type a message, or /help for commands.")
		return
	}
	r.printHistory(id)
}

func (r *REPL) printHistory(id string) {
	info, _ := r.store.Session(id)
	fmt.Fprintf(r.out, "== %s ==\n", info.Title)
	for _, m := range r.store.Messages(id) {
		who := "you"
		if m.Role == domain.RoleAssistant {
			who = "assistant"
		}
		fmt.Fprintf(r.out, "%s: %s", who, m.Content)
		if m.Status == domain.MessageStatusError || m.Status == domain.MessageStatusAborted {
			fmt.Fprintf(r.out, " [%s]", m.Status)
		}
		fmt.Fprintln(r.out)
	}
}

func (r *REPL) prompt() {
	io.WriteString(r.out, "> ")
}

func lastAssistant(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleAssistant {
			return msgs[i].ID
		}
	}
	return ""
}
