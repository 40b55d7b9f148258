package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"anya-bot/internal/conversation"
	"anya-bot/internal/game/roulette"
	"anya-bot/internal/moderation"
	"anya-bot/internal/session"
	"anya-bot/internal/surface"
)

// Inbound is a text message reduced to what routing needs.
type Inbound struct {
	Target    surface.Target
	UserID    int64
	Label     string
	Text      string
	Private   bool
	Addressed bool
	ReplyToID int64
}

// Route is what Handle did with an inbound message.
type Route int

const (
	RouteIgnored Route = iota
	RouteRoulette
	RouteRoleplay
	RouteModeration
	RouteChat
)

// Handle routes one text message, in order: the r/691 trigger, the
// sender's roleplay, a moderation request, then free chat. Only the
// trigger is heard without addressing the bot.
func (h *Handler) Handle(ctx context.Context, in Inbound) (Route, string) {
	if roulette.IsTrigger(in.Text) && !in.Private && h.roulette != nil {
		return RouteRoulette, h.spin(ctx, in)
	}
	if !in.Addressed {
		return RouteIgnored, ""
	}

	handled, err := h.Converse(ctx, in.Target, in.UserID, in.Label, in.Text)
	if handled {
		if err != nil {
			log.Debug().Err(err).Int64("user_id", in.UserID).Msg("Roleplay message rejected")
			if !errors.Is(err, session.ErrMessageRate) {
				return RouteRoleplay, userMessage(err)
			}
		}
		return RouteRoleplay, ""
	}

	if !in.Private && h.pipeline != nil {
		_, err := h.pipeline.Consider(ctx, moderation.Request{
			Target:      in.Target,
			RequesterID: in.UserID,
			Text:        in.Text,
			ReplyToID:   in.ReplyToID,
		})
		switch {
		case err == nil:
			return RouteModeration, ""
		case errors.Is(err, moderation.ErrNotModeration):
		case errors.Is(err, moderation.ErrUnknownTarget), errors.Is(err, moderation.ErrPendingProposal):
			return RouteModeration, userMessage(err)
		default:
			log.Error().Err(err).Int64("user_id", in.UserID).Msg("Moderation proposal failed")
			return RouteModeration, userMessage(err)
		}
	}

	if h.chat == nil {
		return RouteIgnored, ""
	}
	return RouteChat, h.chat.Reply(ctx, in.UserID, in.Text)
}

func (h *Handler) spin(ctx context.Context, in Inbound) string {
	res, err := h.roulette.Spin(ctx, in.Target.ChatID, in.UserID, in.Text)
	if err != nil {
		log.Warn().Err(err).
			Int64("chat_id", in.Target.ChatID).
			Int64("user_id", in.UserID).
			Msg("691 timeout failed")
		return fmt.Sprintf("%s\n(...but I couldn't actually time you out. Lucky you.)", res.Message)
	}
	return res.Message
}

// HandleText serves every plain text message.
func (h *Handler) HandleText(c tele.Context) error {
	msg := c.Message()
	sender := c.Sender()
	if msg == nil || sender == nil || sender.IsBot {
		return nil
	}
	me := c.Bot().Me

	in := Inbound{
		Target:    targetOf(c),
		UserID:    sender.ID,
		Label:     displayName(sender),
		Text:      stripMention(msg.Text, me),
		Private:   msg.Private(),
		Addressed: addressed(msg, me),
	}
	if msg.ReplyTo != nil && msg.ReplyTo.Sender != nil && (me == nil || msg.ReplyTo.Sender.ID != me.ID) {
		in.ReplyToID = msg.ReplyTo.Sender.ID
	}

	ctx, cancel := requestContext()
	defer cancel()

	route, reply := h.Handle(ctx, in)
	if reply == "" {
		return nil
	}
	if route == RouteRoleplay || route == RouteModeration {
		h.notice(ctx, in.Target, reply)
		return nil
	}
	return c.Reply(reply)
}

// ChatFunc answers a proposal the requester marked as just chatting.
func ChatFunc(chat *conversation.Chat, surf surface.Surface) moderation.ChatFunc {
	return func(ctx context.Context, to surface.Target, userID int64, text string) {
		reply := chat.Reply(ctx, userID, text)
		if _, err := surf.Send(ctx, to, surface.Text(reply)); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to send chat reply")
		}
	}
}

// ModLog renders the newest audit entries for chatID.
func (h *Handler) ModLog(ctx context.Context, chatID int64, limit int) (string, error) {
	if h.audit == nil {
		return "The moderation audit log is disabled.", nil
	}
	entries, err := h.audit.Recent(ctx, chatID, limit)
	if err != nil {
		return "", err
	}
	counts, err := h.audit.CountByState(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No moderation requests recorded for this chat.", nil
	}

	var b strings.Builder
	b.WriteString("📋 Moderation log\n")
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	for i, s := range states {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %d", s, counts[s])
	}
	b.WriteString("\n\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s %d by %d → %s",
			e.ResolvedAt.UTC().Format("2006-01-02 15:04"), e.Action, e.TargetID, e.RequesterID, e.State)
		if e.DurationMinutes > 0 {
			fmt.Fprintf(&b, " (%dm)", e.DurationMinutes)
		}
		if e.Reason != nil {
			fmt.Fprintf(&b, " reason: %s", *e.Reason)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// HandleModLog shows the chat's moderation audit log to admins.
func (h *Handler) HandleModLog(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	text, err := h.ModLog(ctx, c.Chat().ID, 10)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", c.Chat().ID).Msg("Failed to read moderation log")
		return c.Reply("❌ " + userMessage(err))
	}
	return c.Reply(text)
}

// Help lists what the bot can do.
func (h *Handler) Help() string {
	var b strings.Builder
	b.WriteString("Hi! Here's what I can do:\n\n🎮 Games\n")
	if h.games != nil {
		for _, g := range h.games.List() {
			fmt.Fprintf(&b, "/%s - %s\n", g.Command(), g.Description())
		}
	}
	b.WriteString("/quit_blackjack - Walk away from your blackjack hand\n")
	b.WriteString("\n🎭 Roleplay\n")
	b.WriteString("/roleplay <name> | <description> [| <avatar url>] - Talk to a custom character\n")
	b.WriteString("/roleplay_preset <key> - Talk to a preset character\n")
	b.WriteString("/end_roleplay - End your roleplay\n")
	b.WriteString("\n💬 Mention me or reply to me to chat. Admins can ask me to ban, kick or time out users, and I'll ask before doing it.\n")
	fmt.Fprintf(&b, "🎲 Post %s if you dare.", roulette.Trigger)
	return b.String()
}

// HandleHelp replies with Help.
func (h *Handler) HandleHelp(c tele.Context) error {
	return c.Reply(h.Help())
}
