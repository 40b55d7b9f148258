package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"anya-bot/internal/metrics"
	"anya-bot/internal/pkg/lock"
	"anya-bot/internal/ratelimit"
	"anya-bot/internal/surface"
)

// Config holds registry limits. Zero values fall back to the defaults below.
type Config struct {
	GlobalCap            int
	PerUserCap           int
	CreationLimits       map[Kind]int
	CreationWindow       time.Duration
	GlobalCreationLimit  int
	GlobalCreationWindow time.Duration
	MessageLimit         int
	MessageWindow        time.Duration
	// Clock replaces time.Now, mainly for tests.
	Clock func() time.Time
}

const (
	DefaultGlobalCap            = 20
	DefaultPerUserCap           = 1
	DefaultCreationWindow       = 24 * time.Hour
	DefaultGlobalCreationLimit  = 60
	DefaultGlobalCreationWindow = time.Minute
	DefaultMessageLimit         = 10
	DefaultMessageWindow        = 10 * time.Minute
)

// DefaultCreationLimits are the per-user creations allowed per CreationWindow.
var DefaultCreationLimits = map[Kind]int{
	KindConversation: 3,
	KindGame:         30,
}

type userKind struct {
	user int64
	kind Kind
}

// Registry tracks live sessions keyed by conversation id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	perUser  map[userKind]int

	globalCap  int
	perUserCap int

	creations       map[Kind]*ratelimit.Keyed
	globalCreations *ratelimit.Window
	messages        *ratelimit.Keyed

	locks   *lock.KeyLock
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewRegistry creates a registry. m may be nil.
func NewRegistry(cfg *Config, m *metrics.Metrics) *Registry {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.GlobalCap <= 0 {
		c.GlobalCap = DefaultGlobalCap
	}
	if c.PerUserCap <= 0 {
		c.PerUserCap = DefaultPerUserCap
	}
	if c.CreationWindow <= 0 {
		c.CreationWindow = DefaultCreationWindow
	}
	if c.GlobalCreationLimit <= 0 {
		c.GlobalCreationLimit = DefaultGlobalCreationLimit
	}
	if c.GlobalCreationWindow <= 0 {
		c.GlobalCreationWindow = DefaultGlobalCreationWindow
	}
	if c.MessageLimit <= 0 {
		c.MessageLimit = DefaultMessageLimit
	}
	if c.MessageWindow <= 0 {
		c.MessageWindow = DefaultMessageWindow
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}

	clock := ratelimit.WithClock(c.Clock)
	creations := make(map[Kind]*ratelimit.Keyed, 2)
	for _, k := range []Kind{KindGame, KindConversation} {
		limit := c.CreationLimits[k]
		if limit <= 0 {
			limit = DefaultCreationLimits[k]
		}
		creations[k] = ratelimit.NewKeyed(limit, c.CreationWindow, clock)
	}

	return &Registry{
		sessions:        make(map[string]*Session),
		perUser:         make(map[userKind]int),
		globalCap:       c.GlobalCap,
		perUserCap:      c.PerUserCap,
		creations:       creations,
		globalCreations: ratelimit.NewWindow(c.GlobalCreationLimit, c.GlobalCreationWindow, clock),
		messages:        ratelimit.NewKeyed(c.MessageLimit, c.MessageWindow, clock),
		locks:           lock.NewKeyLock(),
		now:             c.Clock,
		metrics:         m,
	}
}

// Create registers a new session after checking, in order, the global
// concurrency cap, the owner's per-kind cap and the creation quotas. A
// rejected attempt consumes no quota.
func (r *Registry) Create(ctx context.Context, spec Spec) (Session, error) {
	if spec.ID == "" || spec.NewEngine == nil {
		return Session{}, fmt.Errorf("session: incomplete spec")
	}
	creations, ok := r.creations[spec.Kind]
	if !ok {
		return Session{}, fmt.Errorf("session: unknown kind %q", spec.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[spec.ID]; exists {
		return Session{}, ErrSessionExists
	}
	if len(r.sessions) >= r.globalCap {
		r.metrics.SessionRejected("global_cap")
		return Session{}, ErrGlobalCap
	}
	key := userKind{user: spec.Owner, kind: spec.Kind}
	if r.perUser[key] >= r.perUserCap {
		r.metrics.SessionRejected("user_cap")
		return Session{}, ErrUserCap
	}
	if !creations.Allow(spec.Owner) || !r.globalCreations.Allow() {
		r.metrics.SessionRejected("creation_rate")
		r.metrics.RateLimited("session_creation")
		return Session{}, ErrCreationRate
	}

	engine, err := spec.NewEngine()
	if err != nil {
		return Session{}, fmt.Errorf("session: start engine: %w", err)
	}

	// Both windows were checked under r.mu, so these cannot fail.
	creations.Admit(spec.Owner)
	r.globalCreations.Admit()

	now := r.now()
	s := &Session{
		ID:           spec.ID,
		Owner:        spec.Owner,
		Kind:         spec.Kind,
		Label:        spec.Label,
		Target:       spec.Target,
		Engine:       engine,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.sessions[s.ID] = s
	r.perUser[key]++
	r.metrics.SessionStarted(string(s.Kind))

	log.Info().
		Str("conversation_id", s.ID).
		Int64("user_id", s.Owner).
		Str("kind", string(s.Kind)).
		Str("label", s.Label).
		Msg("Session created")

	return *s, nil
}

// lookup returns the live session for id.
func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove unregisters s and releases its counters. It reports whether s was
// still registered. The caller holds the session lock.
func (r *Registry) remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.ID]; !ok || cur != s {
		return false
	}
	delete(r.sessions, s.ID)
	key := userKind{user: s.Owner, kind: s.Kind}
	if r.perUser[key] <= 1 {
		delete(r.perUser, key)
	} else {
		r.perUser[key]--
	}
	r.metrics.SessionEnded(string(s.Kind))
	return true
}

// Dispatch applies ev to the session registered under id on behalf of
// userID. Only the owner may act; anyone else gets ErrNotOwner and nothing
// changes. The engine runs under the session lock. Input the engine
// rejects consumes no message quota and does not count as activity. A
// finished engine, or one that reports ErrEngineFault, ends the session.
func (r *Registry) Dispatch(ctx context.Context, id string, userID int64, ev surface.Event) (Outcome, error) {
	s, ok := r.lookup(id)
	if !ok {
		return Outcome{}, ErrNoSession
	}
	if s.Owner != userID {
		return Outcome{}, ErrNotOwner
	}

	ended := false
	r.locks.Lock(id)
	defer func() {
		r.locks.Unlock(id)
		if ended {
			r.locks.Forget(id)
		}
	}()

	// The reaper may have expired it while we waited for the lock.
	if cur, ok := r.lookup(id); !ok || cur != s {
		return Outcome{}, ErrNoSession
	}

	if s.Kind == KindConversation && !r.messages.Allow(userID) {
		r.metrics.RateLimited("session_message")
		return Outcome{Session: *s}, ErrMessageRate
	}

	ev.ConversationID = id
	ev.UserID = userID
	msg, err := s.Engine.Apply(ctx, ev)
	// Rejected input leaves quota, activity and turns untouched.
	if err == nil || errors.Is(err, ErrEngineFault) {
		if s.Kind == KindConversation {
			r.messages.Admit(userID)
		}
		s.LastActivity = r.now()
		s.Turns++
	}
	if err != nil {
		if errors.Is(err, ErrEngineFault) {
			log.Error().Err(err).
				Str("conversation_id", id).
				Int64("user_id", userID).
				Msg("Engine fault, terminating session")
			ended = r.remove(s)
			return Outcome{Session: *s, Ended: true}, err
		}
		return Outcome{Session: *s}, err
	}

	out := Outcome{Session: *s, Message: msg}
	if s.Engine.Done() {
		ended = r.remove(s)
		out.Ended = true
		r.recordResult(s)
	}
	return out, nil
}

func (r *Registry) recordResult(s *Session) {
	if res, ok := s.Engine.(Resulter); ok && s.Kind == KindGame {
		r.metrics.GameFinished(s.Label, res.Result())
	}
}

// Terminate ends the session registered under id. It waits for any
// in-flight action and is idempotent: the second call returns false. A
// game that already finished, such as a hand settled on the deal, has its
// result recorded.
func (r *Registry) Terminate(id string) (Session, bool) {
	s, ok := r.lookup(id)
	if !ok {
		return Session{}, false
	}

	r.locks.Lock(id)
	removed := r.remove(s)
	if removed && s.Engine.Done() {
		r.recordResult(s)
	}
	r.locks.Unlock(id)
	if !removed {
		return Session{}, false
	}
	r.locks.Forget(id)

	log.Info().Str("conversation_id", id).Int64("user_id", s.Owner).Msg("Session terminated")
	return *s, true
}

// SetRef records the message that displays the session.
func (r *Registry) SetRef(id string, ref surface.Ref) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrNoSession
	}
	return r.locks.WithLock(id, func() error {
		s.Ref = ref
		return nil
	})
}

// Get returns a snapshot of the session registered under id.
func (r *Registry) Get(id string) (Session, bool) {
	s, ok := r.lookup(id)
	if !ok {
		return Session{}, false
	}
	r.locks.Lock(id)
	defer r.locks.Unlock(id)
	return *s, true
}

// FindByOwner returns the owner's live session of kind, if any.
func (r *Registry) FindByOwner(userID int64, kind Kind) (Session, bool) {
	r.mu.RLock()
	var found *Session
	for _, s := range r.sessions {
		if s.Owner == userID && s.Kind == kind {
			found = s
			break
		}
	}
	r.mu.RUnlock()

	if found == nil {
		return Session{}, false
	}
	return r.Get(found.ID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CountFor returns how many sessions of kind userID currently owns.
func (r *Registry) CountFor(userID int64, kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.perUser[userKind{user: userID, kind: kind}]
}

// MessageRetryAfter tells a rate-limited user how long to wait.
func (r *Registry) MessageRetryAfter(userID int64) time.Duration {
	return r.messages.RetryAfter(userID)
}

// snapshot returns the live session pointers.
func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// pruneWindows drops idle per-user rate windows.
func (r *Registry) pruneWindows() int {
	n := r.messages.Prune()
	for _, k := range r.creations {
		n += k.Prune()
	}
	return n
}
