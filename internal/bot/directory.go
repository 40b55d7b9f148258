package bot

import (
	"strings"
	"sync"

	tele "gopkg.in/telebot.v3"

	"anya-bot/internal/moderation"
)

// UserDirectory remembers the users the bot has seen. It knows which users
// have been active in an allowed group, and may therefore use private chat,
// and maps @usernames to ids per chat so moderation targets can be resolved.
type UserDirectory struct {
	mu        sync.RWMutex
	private   map[int64]bool
	usernames map[int64]map[string]int64
}

// NewUserDirectory creates an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		private:   make(map[int64]bool),
		usernames: make(map[int64]map[string]int64),
	}
}

// AllowPrivate marks a user as allowed to use private chat.
func (d *UserDirectory) AllowPrivate(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.private[userID] = true
}

// PrivateAllowed checks if a user is allowed to use private chat.
func (d *UserDirectory) PrivateAllowed(userID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.private[userID]
}

// Observe records u as a member of chatID.
func (d *UserDirectory) Observe(chatID int64, u *tele.User) {
	if u == nil || u.Username == "" || u.IsBot {
		return
	}
	name := normalizeUsername(u.Username)

	d.mu.Lock()
	defer d.mu.Unlock()
	names, ok := d.usernames[chatID]
	if !ok {
		names = make(map[string]int64)
		d.usernames[chatID] = names
	}
	names[name] = u.ID
}

// Resolve maps "@name" or "name" to a user id seen in chatID.
func (d *UserDirectory) Resolve(chatID int64, ref string) (int64, bool) {
	name := normalizeUsername(ref)
	if name == "" {
		return 0, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.usernames[chatID][name]
	return id, ok
}

// Forget drops everything known about chatID.
func (d *UserDirectory) Forget(chatID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.usernames, chatID)
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

var _ moderation.Resolver = (*UserDirectory)(nil)
