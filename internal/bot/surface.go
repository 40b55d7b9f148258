package bot

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"anya-bot/internal/surface"
)

// API is the slice of *tele.Bot used outside the poller.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Ban(chat *tele.Chat, member *tele.ChatMember, revokeMessages ...bool) error
	Unban(chat *tele.Chat, user *tele.User, forBanned ...bool) error
	Restrict(chat *tele.Chat, member *tele.ChatMember) error
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

var _ API = (*tele.Bot)(nil)

// Surface posts engine output to Telegram.
type Surface struct {
	api API
}

// NewSurface creates a Surface backed by api.
func NewSurface(api API) *Surface {
	return &Surface{api: api}
}

// Send posts msg to a chat, inside the forum topic when ThreadID is set.
func (s *Surface) Send(_ context.Context, to surface.Target, msg surface.Message) (surface.Ref, error) {
	opts := &tele.SendOptions{ThreadID: to.ThreadID}
	if markup := Markup(msg.Actions); markup != nil {
		opts.ReplyMarkup = markup
	}

	sent, err := s.api.Send(&tele.Chat{ID: to.ChatID}, msg.Text, opts)
	if err != nil {
		return surface.Ref{}, fmt.Errorf("failed to send message: %w", err)
	}
	return surface.Ref{ChatID: to.ChatID, MessageID: sent.ID}, nil
}

// Edit replaces the text and buttons of a posted message. An edit that
// changes nothing is not an error.
func (s *Surface) Edit(_ context.Context, ref surface.Ref, msg surface.Message) error {
	var opts []interface{}
	if markup := Markup(msg.Actions); markup != nil {
		opts = append(opts, markup)
	}

	_, err := s.api.Edit(editable(ref), msg.Text, opts...)
	if err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// Delete removes a posted message.
func (s *Surface) Delete(_ context.Context, ref surface.Ref) error {
	if err := s.api.Delete(editable(ref)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Notify posts plain text.
func (s *Surface) Notify(ctx context.Context, to surface.Target, text string) error {
	_, err := s.Send(ctx, to, surface.Text(text))
	return err
}

// Markup converts action rows to an inline keyboard. It returns nil when
// there are no actions.
func Markup(rows [][]surface.Action) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tele.InlineButton, len(row))
		for i, a := range row {
			buttons[i] = tele.InlineButton{Text: a.Label, Data: a.Data}
		}
		keyboard = append(keyboard, buttons)
	}
	if len(keyboard) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

func editable(ref surface.Ref) *tele.Message {
	return &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
}

var _ surface.Surface = (*Surface)(nil)
