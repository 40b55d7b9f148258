package bot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"anya-bot/internal/config"
)

// fakeContext answers the accessors the middleware uses. Anything else
// panics through the nil embedded Context.
type fakeContext struct {
	tele.Context
	chat   *tele.Chat
	sender *tele.User
	msg    *tele.Message
}

func (f *fakeContext) Chat() *tele.Chat       { return f.chat }
func (f *fakeContext) Sender() *tele.User     { return f.sender }
func (f *fakeContext) Message() *tele.Message { return f.msg }

func passes(mw tele.MiddlewareFunc, c tele.Context) bool {
	called := false
	_ = mw(func(tele.Context) error {
		called = true
		return nil
	})(c)
	return called
}

// Property 1: Admin permission check
// *For any* admin list and user id, IsAdmin holds iff the id is listed.
func TestAdminPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "adminIDs")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		userID := rapid.OneOf(
			rapid.SampledFrom(adminIDs),
			rapid.Int64Range(1, 1000000000),
		).Draw(t, "userID")

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if cfg.IsAdmin(userID) != expected {
			t.Fatalf("admin check mismatch: userID=%d adminIDs=%v expected=%v", userID, adminIDs, expected)
		}
	})
}

// Property 2: Whitelist enforcement
// *For any* non-empty whitelist and group chat, the middleware lets the
// update through iff the chat is listed.
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatIDs := rapid.SliceOfN(rapid.Int64Range(-1000000000, -1), 1, 10).Draw(t, "chatIDs")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chatIDs}}

		chatID := rapid.OneOf(
			rapid.SampledFrom(chatIDs),
			rapid.Int64Range(-1000000000, -1),
		).Draw(t, "chatID")

		expected := false
		for _, id := range chatIDs {
			if id == chatID {
				expected = true
				break
			}
		}

		c := &fakeContext{
			chat:   &tele.Chat{ID: chatID, Type: tele.ChatSuperGroup},
			sender: &tele.User{ID: 7},
			msg:    &tele.Message{},
		}
		got := passes(WhitelistMiddleware(cfg, NewUserDirectory()), c)
		if got != expected {
			t.Fatalf("whitelist mismatch: chatID=%d whitelist=%v expected=%v got=%v", chatID, chatIDs, expected, got)
		}
	})
}

// Property 3: Empty whitelist allows all chats
// *For any* chat id, an empty whitelist allows it.
func TestEmptyWhitelistAllowsAllChatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		if !cfg.IsChatAllowed(chatID) {
			t.Fatalf("with empty whitelist, chat ID %d should be allowed", chatID)
		}
	})
}

func TestWhitelistMiddleware_PrivateChat(t *testing.T) {
	cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{-100}}}
	dir := NewUserDirectory()
	mw := WhitelistMiddleware(cfg, dir)

	private := &fakeContext{
		chat:   &tele.Chat{ID: 5, Type: tele.ChatPrivate},
		sender: &tele.User{ID: 5},
		msg:    &tele.Message{},
	}
	assert.False(t, passes(mw, private), "unknown user is ignored in private")

	group := &fakeContext{
		chat:   &tele.Chat{ID: -100, Type: tele.ChatGroup},
		sender: &tele.User{ID: 5, Username: "Alice"},
		msg:    &tele.Message{ReplyTo: &tele.Message{Sender: &tele.User{ID: 6, Username: "bob"}}},
	}
	assert.True(t, passes(mw, group))
	assert.True(t, passes(mw, private), "seen in an allowed group")

	id, ok := dir.Resolve(-100, "@alice")
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
	id, ok = dir.Resolve(-100, "bob")
	assert.True(t, ok, "replied-to users are recorded")
	assert.Equal(t, int64(6), id)

	assert.False(t, passes(mw, &fakeContext{chat: &tele.Chat{ID: 1}}), "no sender")
}

// Property 4: Directory resolution ignores case and the @ prefix
// *For any* username observed in a chat, Resolve finds it in that chat
// only, however it is spelled.
func TestUserDirectoryResolveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9_]{4,31}`).Draw(t, "name")
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")

		dir := NewUserDirectory()
		dir.Observe(chatID, &tele.User{ID: userID, Username: name})

		for _, ref := range []string{name, "@" + name, strings.ToUpper(name), " @" + strings.ToLower(name) + " "} {
			got, ok := dir.Resolve(chatID, ref)
			if !ok || got != userID {
				t.Fatalf("resolve %q = %d, %v; want %d", ref, got, ok, userID)
			}
		}
		if _, ok := dir.Resolve(chatID+1, name); ok {
			t.Fatalf("%s resolved in another chat", name)
		}
	})
}

func TestUserDirectory(t *testing.T) {
	dir := NewUserDirectory()
	dir.Observe(-1, nil)
	dir.Observe(-1, &tele.User{ID: 1})
	dir.Observe(-1, &tele.User{ID: 2, Username: "helper_bot", IsBot: true})
	dir.Observe(-1, &tele.User{ID: 3, Username: "carol"})
	dir.Observe(-1, &tele.User{ID: 4, Username: "Carol"})

	_, ok := dir.Resolve(-1, "helper_bot")
	assert.False(t, ok, "bots are not recorded")
	_, ok = dir.Resolve(-1, "@")
	assert.False(t, ok)

	id, ok := dir.Resolve(-1, "carol")
	assert.True(t, ok)
	assert.Equal(t, int64(4), id, "latest owner of a username wins")

	dir.Forget(-1)
	_, ok = dir.Resolve(-1, "carol")
	assert.False(t, ok)

	assert.False(t, dir.PrivateAllowed(9))
	dir.AllowPrivate(9)
	assert.True(t, dir.PrivateAllowed(9))
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	c := &callbackContext{fakeContext: fakeContext{chat: &tele.Chat{ID: 1}, sender: &tele.User{ID: 2}}}
	assert.True(t, passes(LoggingMiddleware(), c))
}

// callbackContext adds the accessors LoggingMiddleware and
// RecoveryMiddleware use.
type callbackContext struct {
	fakeContext
	callback  *tele.Callback
	responded []string
	replied   []string
}

func (c *callbackContext) Callback() *tele.Callback { return c.callback }
func (c *callbackContext) Text() string             { return "" }

func (c *callbackContext) Respond(resp ...*tele.CallbackResponse) error {
	for _, r := range resp {
		c.responded = append(c.responded, r.Text)
	}
	return nil
}

func (c *callbackContext) Reply(what interface{}, _ ...interface{}) error {
	c.replied = append(c.replied, fmt.Sprint(what))
	return nil
}

func TestRecoveryMiddleware(t *testing.T) {
	boom := func(tele.Context) error { panic("boom") }

	c := &callbackContext{}
	assert.NotPanics(t, func() { _ = RecoveryMiddleware()(boom)(c) })
	assert.Len(t, c.replied, 1)
	assert.NotContains(t, c.replied[0], "boom")

	cb := &callbackContext{callback: &tele.Callback{Data: "x"}}
	assert.NotPanics(t, func() { _ = RecoveryMiddleware()(boom)(cb) })
	assert.Len(t, cb.responded, 1)
	assert.Empty(t, cb.replied)
}

func TestAdminMiddleware(t *testing.T) {
	cfg := &config.Config{Admin: config.AdminConfig{IDs: []int64{1}}}

	admin := &callbackContext{fakeContext: fakeContext{sender: &tele.User{ID: 1}}}
	assert.True(t, passes(AdminMiddleware(cfg), admin))

	other := &callbackContext{fakeContext: fakeContext{sender: &tele.User{ID: 2}}}
	assert.False(t, passes(AdminMiddleware(cfg), other))
	assert.Len(t, other.replied, 1)
}
