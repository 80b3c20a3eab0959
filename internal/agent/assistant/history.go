package assistant

import (
	"github.com/cloudwego/eino/schema"
)

// buildMessages assembles system prompt, recent history and the new user message.
func buildMessages(systemPrompt string, history []*schema.Message, message string, maxHistory int) []*schema.Message {
	recent := trimTail(compact(history), maxHistory)

	msgs := make([]*schema.Message, 0, len(recent)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt))
	msgs = append(msgs, recent...)
	msgs = append(msgs, schema.UserMessage(message))
	return msgs
}

// appendTurn returns a new slice holding history plus one user/assistant turn,
// trimmed to maxHistory.
func appendTurn(history []*schema.Message, user, reply string, maxHistory int) []*schema.Message {
	next := make([]*schema.Message, 0, len(history)+2)
	next = append(next, history...)
	next = append(next, schema.UserMessage(user), schema.AssistantMessage(reply, nil))
	return trimTail(next, maxHistory)
}

// compact drops nil and empty messages; callers may send either.
func compact(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil || m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

// cloneMessages copies the messages themselves so callers cannot mutate cached history.
func cloneMessages(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, len(messages))
	for i, m := range messages {
		c := *m
		out[i] = &c
	}
	return out
}
