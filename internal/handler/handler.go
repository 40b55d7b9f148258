// Package handler turns Telegram updates into session actions, moderation
// proposals, roulette spins and free chat replies.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"anya-bot/internal/completion"
	"anya-bot/internal/config"
	"anya-bot/internal/conversation"
	"anya-bot/internal/game"
	"anya-bot/internal/game/blackjack"
	"anya-bot/internal/game/minesweeper"
	"anya-bot/internal/game/roulette"
	"anya-bot/internal/model"
	"anya-bot/internal/moderation"
	"anya-bot/internal/session"
	"anya-bot/internal/surface"
)

// AuditLog reads back resolved moderation proposals.
type AuditLog interface {
	Recent(ctx context.Context, chatID int64, limit int) ([]*model.AuditEntry, error)
	CountByState(ctx context.Context, chatID int64) (map[string]int64, error)
}

// Deps holds everything the handlers need. Audit may be nil when the
// database is disabled.
type Deps struct {
	Config     *config.Config
	Surface    surface.Surface
	Sessions   *session.Registry
	Games      *game.Registry
	Completion completion.Service
	Chat       *conversation.Chat
	Pipeline   *moderation.Pipeline
	Roulette   *roulette.Roulette
	Audit      AuditLog
	Cleaner    *Cleaner
	NewID      func() string
}

// Handler serves commands, text and button presses.
type Handler struct {
	cfg      *config.Config
	surface  surface.Surface
	sessions *session.Registry
	games    *game.Registry
	svc      completion.Service
	chat     *conversation.Chat
	pipeline *moderation.Pipeline
	roulette *roulette.Roulette
	audit    AuditLog
	cleaner  *Cleaner
	limits   conversation.Limits
	newID    func() string
}

// New creates a Handler.
func New(deps Deps) *Handler {
	limits := conversation.DefaultLimits()
	if deps.Config != nil {
		rp := deps.Config.Roleplay
		limits = conversation.Limits{
			MaxHistory:         rp.MaxHistory,
			ContextWindow:      rp.ContextWindow,
			MaxNameLength:      rp.MaxNameLength,
			MaxPromptLength:    rp.MaxPromptLength,
			MaxAvatarURLLength: rp.MaxAvatarURLLength,
			MaxMessageLength:   rp.MaxMessageLength,
		}
	}
	return &Handler{
		cfg:      deps.Config,
		surface:  deps.Surface,
		sessions: deps.Sessions,
		games:    deps.Games,
		svc:      deps.Completion,
		chat:     deps.Chat,
		pipeline: deps.Pipeline,
		roulette: deps.Roulette,
		audit:    deps.Audit,
		cleaner:  deps.Cleaner,
		limits:   limits,
		newID:    deps.NewID,
	}
}

// userMessage maps an error to the one sentence a user sees. Unknown
// errors get a neutral reply so internals never leak.
func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrNotOwner):
		return "This isn't yours to play."
	case errors.Is(err, session.ErrNoSession):
		return "That session has ended."
	case errors.Is(err, session.ErrGlobalCap):
		return "I'm busy with too many sessions right now, try again later."
	case errors.Is(err, session.ErrUserCap):
		return "You already have one running. Finish it first."
	case errors.Is(err, session.ErrCreationRate):
		return "You've started too many sessions lately, try again later."
	case errors.Is(err, session.ErrMessageRate):
		return "Slow down a little."
	case errors.Is(err, session.ErrEngineFault):
		return "Something went wrong and the session was closed."
	case errors.Is(err, session.ErrUnknownAction):
		return "That button doesn't do anything."
	case errors.Is(err, minesweeper.ErrOutOfRange):
		return "That cell is off the board."
	case errors.Is(err, minesweeper.ErrNoFlagsLeft):
		return "No flags left."
	case errors.Is(err, minesweeper.ErrGameOver), errors.Is(err, blackjack.ErrGameOver):
		return "This game is already over."
	case errors.Is(err, game.ErrUnknownGame):
		return "I don't know that game."
	case errors.Is(err, conversation.ErrBadName):
		return "Character names may only use letters, digits, spaces and - _ . ( )"
	case errors.Is(err, conversation.ErrNameTooLong):
		return "That character name is too long."
	case errors.Is(err, conversation.ErrEmptyPrompt):
		return "Give your character a description."
	case errors.Is(err, conversation.ErrPromptTooLong):
		return "That character description is too long."
	case errors.Is(err, conversation.ErrBadAvatar), errors.Is(err, conversation.ErrAvatarTooLong):
		return "The avatar must be a short http(s) link or a small data:image/ URL."
	case errors.Is(err, conversation.ErrMessageTooLong):
		return "That message is too long for the character."
	case errors.Is(err, conversation.ErrEmptyMessage):
		return "Say something first."
	case errors.Is(err, conversation.ErrUnknownPreset):
		return "Unknown preset. Use /roleplay_preset to list them."
	case errors.Is(err, moderation.ErrNotRequester):
		return "Only the person who asked can answer."
	case errors.Is(err, moderation.ErrNoProposal):
		return "That request is no longer open."
	case errors.Is(err, moderation.ErrPendingProposal):
		return "You already have a request waiting for confirmation."
	case errors.Is(err, moderation.ErrUnknownTarget):
		return "I couldn't tell who you mean. Reply to their message or use their @username."
	case errors.Is(err, completion.ErrRateLimited):
		return "I'm getting too many requests, give me a moment."
	default:
		return "Something went wrong, please try again later."
	}
}

// targetOf returns where replies to c should go.
func targetOf(c tele.Context) surface.Target {
	to := surface.Target{ChatID: c.Chat().ID}
	if msg := c.Message(); msg != nil && msg.ThreadID != 0 {
		to.ThreadID = msg.ThreadID
	}
	return to
}

// displayName is the name a session shows for u.
func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.ID)
}

// addressed reports whether msg speaks to the bot: a private chat, an
// @mention of it or a reply to one of its messages.
func addressed(msg *tele.Message, me *tele.User) bool {
	if msg == nil {
		return false
	}
	if msg.Private() {
		return true
	}
	if me == nil {
		return false
	}
	if msg.ReplyTo != nil && msg.ReplyTo.Sender != nil && msg.ReplyTo.Sender.ID == me.ID {
		return true
	}
	if me.Username == "" {
		return false
	}
	return strings.Contains(strings.ToLower(msg.Text), "@"+strings.ToLower(me.Username))
}

// stripMention removes the bot's @username from text.
func stripMention(text string, me *tele.User) string {
	if me == nil || me.Username == "" {
		return strings.TrimSpace(text)
	}
	mention := "@" + me.Username
	idx := strings.Index(strings.ToLower(text), strings.ToLower(mention))
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:idx] + text[idx+len(mention):])
}

// notice posts a short-lived message that the cleaner removes later.
func (h *Handler) notice(ctx context.Context, to surface.Target, text string) {
	ref, err := h.surface.Send(ctx, to, surface.Text(text))
	if err != nil {
		return
	}
	if h.cleaner != nil {
		h.cleaner.Track(ref)
	}
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
