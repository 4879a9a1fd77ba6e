package chat

import "github.com/xiaot623/viper/internal/domain"

// BuildContext selects the messages dispatched for a completion targeting
// the assistant message targetID:
//   - normal and retry: every message before the target
//   - continue: the continue directive, then every message up to and
//     including the target
//
// Messages with empty content are left out.
func BuildContext(msgs []domain.Message, targetID string, mode domain.CompletionMode) []domain.ContextMessage {
	var out []domain.ContextMessage
	if mode == domain.ModeContinue {
		out = append(out, domain.ContextMessage{Role: domain.RoleSystem, Content: ContinueDirective})
	}

	for _, m := range msgs {
		if m.ID == targetID {
			if mode == domain.ModeContinue && m.Content != "" {
				out = append(out, domain.ContextMessage{Role: m.Role, Content: m.Content})
			}
			break
		}
		if m.Content == "" {
			continue
		}
		out = append(out, domain.ContextMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
