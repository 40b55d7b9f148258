package conversation

import (
	"context"

	"anya-bot/internal/completion"
)

// FallbackTimedOut answers free chat when the completion service fails.
const FallbackTimedOut = "*timed out*"

// Chat answers messages addressed to the bot outside any session.
type Chat struct {
	svc completion.Service
}

// NewChat creates a free-chat responder.
func NewChat(svc completion.Service) *Chat {
	return &Chat{svc: svc}
}

// Reply always returns something to say.
func (c *Chat) Reply(ctx context.Context, userID int64, text string) string {
	return completion.ReplyOr(ctx, c.svc, userID, text, FallbackTimedOut)
}
