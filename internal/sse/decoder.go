// Package sse decodes OpenAI-compatible chat completion streams into text deltas.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DoneSentinel is the payload that ends a completion stream.
const DoneSentinel = "[DONE]"

var dataPrefix = []byte("data:")

// Chunk is a single chat.completion.chunk (or a full chat.completion) payload.
type Chunk struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
}

// Choice represents one completion choice.
type Choice struct {
	Index        int            `json:"index"`
	Delta        *ChoiceMessage `json:"delta,omitempty"`
	Message      *ChoiceMessage `json:"message,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// ChoiceMessage is the role/content body of a delta or message.
type ChoiceMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// Content returns the text carried by the first choice: the delta content,
// or the full message content when the delta has none.
func (c *Chunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	first := c.Choices[0]
	if first.Delta != nil && first.Delta.Content != "" {
		return first.Delta.Content
	}
	if first.Message != nil {
		return first.Message.Content
	}
	return ""
}

// Decoder is an incremental SSE decoder. Feed it raw chunks split at any
// byte boundary; it returns the deltas completed by each chunk.
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	pending   []byte   // bytes after the last line terminator
	data      []string // data lines of the event being assembled
	done      bool
	malformed int
}

// Feed appends chunk to the buffer and decodes every complete event in it.
// done is true once the [DONE] sentinel has been seen; later input is ignored.
func (d *Decoder) Feed(chunk []byte) (deltas []string, done bool) {
	if d.done {
		return nil, true
	}
	d.pending = append(d.pending, chunk...)

	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(d.pending[:i], []byte{'\r'})
		d.pending = d.pending[i+1:]

		if len(line) > 0 {
			d.addLine(line)
			continue
		}
		if delta := d.dispatch(); delta != "" {
			deltas = append(deltas, delta)
		}
		if d.done {
			d.pending = nil
			return deltas, true
		}
	}

	if len(d.pending) == 0 {
		d.pending = nil
	} else {
		d.pending = bytes.Clone(d.pending)
	}
	return deltas, false
}

// Flush decodes whatever is left when the source ends without a final blank line.
func (d *Decoder) Flush() []string {
	if d.done {
		return nil
	}
	if len(d.pending) > 0 {
		d.addLine(bytes.TrimSuffix(d.pending, []byte{'\r'}))
		d.pending = nil
	}
	if delta := d.dispatch(); delta != "" {
		return []string{delta}
	}
	return nil
}

// Done reports whether the [DONE] sentinel has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// Malformed returns the number of events skipped because their payload was not valid JSON.
func (d *Decoder) Malformed() int {
	return d.malformed
}

func (d *Decoder) addLine(line []byte) {
	if !bytes.HasPrefix(line, dataPrefix) {
		// event:, id:, retry: and ":" comments carry nothing we use.
		return
	}
	value := line[len(dataPrefix):]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	d.data = append(d.data, string(value))
}

// dispatch finishes the current event and returns its text fragment, if any.
func (d *Decoder) dispatch() string {
	if len(d.data) == 0 {
		return ""
	}
	payload := strings.Join(d.data, "\n")
	d.data = d.data[:0]

	if strings.TrimSpace(payload) == DoneSentinel {
		d.done = true
		return ""
	}

	var chunk Chunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		d.malformed++
		return ""
	}
	return chunk.Content()
}
