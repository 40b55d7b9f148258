package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"anya-bot/internal/config"
	"anya-bot/internal/moderation"
)

// Moderator applies moderation intents through the Bot API and decides who
// may request them.
type Moderator struct {
	api   API
	cfg   *config.Config
	botID int64
	now   func() time.Time
}

// NewModerator creates a Moderator. botID is the bot's own user id, which is
// never an eligible target.
func NewModerator(api API, cfg *config.Config, botID int64) *Moderator {
	return &Moderator{api: api, cfg: cfg, botID: botID, now: time.Now}
}

// Execute carries out in against in.TargetID.
func (m *Moderator) Execute(_ context.Context, chatID int64, in moderation.Intent) error {
	chat := &tele.Chat{ID: chatID}
	user := &tele.User{ID: in.TargetID}

	var err error
	switch in.Action {
	case moderation.ActionBan:
		err = m.api.Ban(chat, &tele.ChatMember{User: user})
	case moderation.ActionKick:
		// Telegram has no kick; a ban lifted at once removes the member.
		if err = m.api.Ban(chat, &tele.ChatMember{User: user}); err == nil {
			err = m.api.Unban(chat, user, true)
		}
	case moderation.ActionUnban:
		err = m.api.Unban(chat, user, true)
	case moderation.ActionTimeout:
		err = m.api.Restrict(chat, &tele.ChatMember{
			User:            user,
			Rights:          tele.NoRights(),
			RestrictedUntil: m.now().Add(in.Duration).Unix(),
		})
	case moderation.ActionUntimeout:
		err = m.api.Restrict(chat, &tele.ChatMember{
			User:   user,
			Rights: tele.NoRestrictions(),
		})
	default:
		return fmt.Errorf("unsupported action %q", in.Action)
	}
	if err != nil {
		return fmt.Errorf("failed to %s user %d: %w", in.Action, in.TargetID, err)
	}

	log.Info().
		Int64("chat_id", chatID).
		Int64("target_id", in.TargetID).
		Str("action", string(in.Action)).
		Dur("duration", in.Duration).
		Msg("Moderation action applied")
	return nil
}

// CanModerate reports whether userID may have the bot act in chatID:
// configured admins always can, chat admins need the restrict right.
func (m *Moderator) CanModerate(_ context.Context, chatID, userID int64) (bool, error) {
	if m.cfg.IsAdmin(userID) {
		return true, nil
	}
	member, err := m.api.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	switch member.Role {
	case tele.Creator:
		return true, nil
	case tele.Administrator:
		return member.CanRestrictMembers, nil
	}
	return false, nil
}

// Eligible reports whether targetID may be acted on in chatID. The bot
// itself, configured admins and chat admins are protected.
func (m *Moderator) Eligible(_ context.Context, chatID, targetID int64) (bool, error) {
	if targetID == m.botID || m.cfg.IsAdmin(targetID) {
		return false, nil
	}
	member, err := m.api.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: targetID})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	return member.Role != tele.Creator && member.Role != tele.Administrator, nil
}

var (
	_ moderation.Executor   = (*Moderator)(nil)
	_ moderation.Authorizer = (*Moderator)(nil)
)
