// Package surface describes the chat platform as seen by the engines,
// the session registry and the moderation pipeline. Only the bot package
// implements it against Telegram; everything else renders into Message.
package surface

import "context"

// Target addresses a place where the bot can post.
type Target struct {
	ChatID   int64
	ThreadID int
}

// Ref identifies a message the bot has already posted.
type Ref struct {
	ChatID    int64
	MessageID int
}

// Action is one button on a rendered message. Data is opaque to the
// surface and comes back verbatim in an Event.
type Action struct {
	Label string
	Data  string
}

// Message is a renderable reply: text plus optional rows of actions.
type Message struct {
	Text    string
	Actions [][]Action
}

// Event is a user interaction routed back to a session.
type Event struct {
	ConversationID string
	UserID         int64
	Label          string
	Payload        string
}

// Surface posts, edits and removes bot messages.
type Surface interface {
	Send(ctx context.Context, to Target, msg Message) (Ref, error)
	Edit(ctx context.Context, ref Ref, msg Message) error
	Delete(ctx context.Context, ref Ref) error
	Notify(ctx context.Context, to Target, text string) error
}

// Text builds a Message without actions.
func Text(s string) Message {
	return Message{Text: s}
}

// Row appends a row of actions and returns the message for chaining.
func (m Message) Row(actions ...Action) Message {
	if len(actions) == 0 {
		return m
	}
	rows := make([][]Action, len(m.Actions), len(m.Actions)+1)
	copy(rows, m.Actions)
	m.Actions = append(rows, actions)
	return m
}
