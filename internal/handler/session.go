package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"anya-bot/internal/conversation"
	"anya-bot/internal/game/blackjack"
	"anya-bot/internal/moderation"
	"anya-bot/internal/session"
	"anya-bot/internal/surface"
)

// StartGame opens a game session for userID and posts its board.
func (h *Handler) StartGame(ctx context.Context, to surface.Target, userID int64, command string) (session.Session, error) {
	g, err := h.games.Lookup(command)
	if err != nil {
		return session.Session{}, err
	}

	id := h.newID()
	s, err := h.sessions.Create(ctx, session.Spec{
		ID:     id,
		Owner:  userID,
		Kind:   session.KindGame,
		Label:  g.Name(),
		Target: to,
		NewEngine: func() (session.Engine, error) {
			return g.Start(ctx, userID)
		},
	})
	if err != nil {
		return session.Session{}, err
	}

	s, err = h.post(ctx, s, session.Bind(id, s.Engine.Render()))
	if err != nil {
		return session.Session{}, err
	}
	// A natural blackjack settles on the deal.
	if s.Engine.Done() {
		h.sessions.Terminate(id)
	}
	return s, nil
}

// QuitGame abandons the owner's running game called name.
func (h *Handler) QuitGame(ctx context.Context, userID int64, name string) error {
	s, ok := h.sessions.FindByOwner(userID, session.KindGame)
	if !ok || s.Label != name {
		return session.ErrNoSession
	}
	_, err := h.dispatch(ctx, s.ID, userID, surface.Event{Payload: blackjack.ActionQuit})
	return err
}

// StartRoleplay opens a conversation session with ch for userID.
func (h *Handler) StartRoleplay(ctx context.Context, to surface.Target, userID int64, ch conversation.Character) (session.Session, error) {
	if err := ch.Validate(h.limits); err != nil {
		return session.Session{}, err
	}

	id := h.newID()
	s, err := h.sessions.Create(ctx, session.Spec{
		ID:     id,
		Owner:  userID,
		Kind:   session.KindConversation,
		Label:  ch.Name,
		Target: to,
		NewEngine: func() (session.Engine, error) {
			return conversation.NewRoleplay(h.svc, ch, h.limits)
		},
	})
	if err != nil {
		return session.Session{}, err
	}

	return h.post(ctx, s, s.Engine.Render())
}

// EndRoleplay terminates the owner's conversation session.
func (h *Handler) EndRoleplay(ctx context.Context, userID int64) (session.Session, error) {
	s, ok := h.sessions.FindByOwner(userID, session.KindConversation)
	if !ok {
		return session.Session{}, session.ErrNoSession
	}
	ended, ok := h.sessions.Terminate(s.ID)
	if !ok {
		return session.Session{}, session.ErrNoSession
	}
	if err := h.surface.Notify(ctx, ended.Target, fmt.Sprintf("👋 The roleplay with %s has ended.", ended.Label)); err != nil {
		log.Warn().Err(err).Str("conversation_id", ended.ID).Msg("Failed to announce roleplay end")
	}
	return ended, nil
}

// Converse routes text from userID to their conversation in to.ChatID.
// It reports false when the user has no conversation there.
func (h *Handler) Converse(ctx context.Context, to surface.Target, userID int64, label, text string) (bool, error) {
	s, ok := h.sessions.FindByOwner(userID, session.KindConversation)
	if !ok || s.Target.ChatID != to.ChatID {
		return false, nil
	}

	out, err := h.sessions.Dispatch(ctx, s.ID, userID, surface.Event{Label: label, Payload: text})
	if err != nil {
		if errors.Is(err, session.ErrMessageRate) {
			wait := h.sessions.MessageRetryAfter(userID).Round(time.Second)
			h.notice(ctx, to, fmt.Sprintf("⏳ %s Try again in %s.", userMessage(err), wait))
			return true, err
		}
		return true, err
	}

	ref, err := h.surface.Send(ctx, out.Session.Target, out.Message)
	if err != nil {
		return true, err
	}
	if err := h.sessions.SetRef(s.ID, ref); err != nil && !errors.Is(err, session.ErrNoSession) {
		log.Warn().Err(err).Str("conversation_id", s.ID).Msg("Failed to record roleplay message")
	}
	return true, nil
}

// Press handles a button. It returns the short acknowledgement shown to
// the presser.
func (h *Handler) Press(ctx context.Context, userID int64, label, data string) (string, error) {
	data = strings.TrimPrefix(data, "\f")

	if id, payload, ok := session.DecodeCallback(data); ok {
		_, err := h.dispatch(ctx, id, userID, surface.Event{Label: label, Payload: payload})
		if err != nil {
			return userMessage(err), err
		}
		return "", nil
	}

	if id, choice, ok := moderation.DecodeCallback(data); ok {
		if h.pipeline == nil {
			return userMessage(moderation.ErrNoProposal), moderation.ErrNoProposal
		}
		if _, err := h.pipeline.Resolve(ctx, id, userID, choice); err != nil {
			return userMessage(err), err
		}
		return "", nil
	}

	return userMessage(session.ErrUnknownAction), session.ErrUnknownAction
}

// dispatch drives a game session and redraws its board.
func (h *Handler) dispatch(ctx context.Context, id string, userID int64, ev surface.Event) (session.Outcome, error) {
	out, err := h.sessions.Dispatch(ctx, id, userID, ev)
	if err != nil {
		if errors.Is(err, session.ErrEngineFault) && out.Session.Ref.MessageID != 0 {
			_ = h.surface.Edit(ctx, out.Session.Ref, surface.Text("⚠️ "+userMessage(err)))
		}
		return out, err
	}

	if out.Session.Ref.MessageID != 0 {
		if err := h.surface.Edit(ctx, out.Session.Ref, session.Bind(id, out.Message)); err != nil {
			log.Warn().Err(err).Str("conversation_id", id).Msg("Failed to redraw session")
		}
	}
	if out.Ended {
		log.Info().
			Str("conversation_id", id).
			Int64("user_id", userID).
			Str("kind", string(out.Session.Kind)).
			Msg("Session finished")
	}
	return out, nil
}

// post shows a new session and records where. A session whose first
// message cannot be posted is terminated.
func (h *Handler) post(ctx context.Context, s session.Session, msg surface.Message) (session.Session, error) {
	ref, err := h.surface.Send(ctx, s.Target, msg)
	if err != nil {
		h.sessions.Terminate(s.ID)
		return session.Session{}, err
	}
	if err := h.sessions.SetRef(s.ID, ref); err != nil {
		return session.Session{}, err
	}
	s.Ref = ref
	return s, nil
}

// OnSessionExpired strips the buttons from an expired game board.
func (h *Handler) OnSessionExpired(s session.Session) {
	if s.Kind != session.KindGame || s.Ref.MessageID == 0 {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()

	msg := s.Engine.Render()
	msg.Actions = nil
	if err := h.surface.Edit(ctx, s.Ref, msg); err != nil {
		log.Debug().Err(err).Str("conversation_id", s.ID).Msg("Failed to close expired board")
	}
}

// HandleGame starts the game named by the command.
func (h *Handler) HandleGame(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || c.Message() == nil {
		return nil
	}
	ctx, cancel := requestContext()
	defer cancel()

	command := strings.TrimPrefix(strings.Fields(c.Message().Text)[0], "/")
	command, _, _ = strings.Cut(command, "@")
	if _, err := h.StartGame(ctx, targetOf(c), sender.ID, command); err != nil {
		log.Debug().Err(err).Int64("user_id", sender.ID).Str("game", command).Msg("Game not started")
		return c.Reply("❌ " + userMessage(err))
	}
	return nil
}

// HandleQuitBlackjack ends the sender's blackjack hand.
func (h *Handler) HandleQuitBlackjack(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := requestContext()
	defer cancel()

	if err := h.QuitGame(ctx, sender.ID, blackjack.NewGame().Name()); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return c.Reply("You don't have a blackjack game running.")
		}
		return c.Reply("❌ " + userMessage(err))
	}
	return nil
}

// HandleRoleplay starts a custom character: /roleplay name | prompt [| avatar].
func (h *Handler) HandleRoleplay(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ch, ok := conversation.ParseCharacter(c.Message().Payload)
	if !ok {
		return c.Reply("Usage: /roleplay <name> | <description> [| <avatar url>]")
	}
	ctx, cancel := requestContext()
	defer cancel()

	if _, err := h.StartRoleplay(ctx, targetOf(c), sender.ID, ch); err != nil {
		return c.Reply("❌ " + userMessage(err))
	}
	return nil
}

// HandleRoleplayPreset starts a preset character, or lists them.
func (h *Handler) HandleRoleplayPreset(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	key := strings.TrimSpace(c.Message().Payload)
	if key == "" {
		return c.Reply("Presets: " + strings.Join(conversation.PresetKeys(), ", ") + "\nUsage: /roleplay_preset <key>")
	}
	preset, ok := conversation.LookupPreset(key)
	if !ok {
		return c.Reply("❌ " + userMessage(conversation.ErrUnknownPreset))
	}
	ctx, cancel := requestContext()
	defer cancel()

	if _, err := h.StartRoleplay(ctx, targetOf(c), sender.ID, preset.Character); err != nil {
		return c.Reply("❌ " + userMessage(err))
	}
	return nil
}

// HandleEndRoleplay ends the sender's roleplay.
func (h *Handler) HandleEndRoleplay(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := requestContext()
	defer cancel()

	if _, err := h.EndRoleplay(ctx, sender.ID); err != nil {
		return c.Reply("You don't have a roleplay running.")
	}
	return nil
}

// HandleCallback answers every inline button press.
func (h *Handler) HandleCallback(c tele.Context) error {
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}
	ctx, cancel := requestContext()
	defer cancel()

	ack, err := h.Press(ctx, sender.ID, displayName(sender), callback.Data)
	if err != nil {
		log.Debug().Err(err).Int64("user_id", sender.ID).Str("data", callback.Data).Msg("Button rejected")
	}
	return c.Respond(&tele.CallbackResponse{Text: ack})
}
