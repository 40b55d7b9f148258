// Package moderation turns chat messages into moderation actions. A cheap
// keyword filter gates a completion-backed classifier; a confident result
// becomes a proposal the requester must confirm before anything happens.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"anya-bot/internal/metrics"
	"anya-bot/internal/surface"
)

// DefaultConfirmTimeout is how long a proposal waits for its requester.
const DefaultConfirmTimeout = 60 * time.Second

// State is a proposal's position in the confirmation workflow. Confirmed,
// Cancelled and Expired are terminal.
type State int

const (
	StateNone State = iota
	StateProposed
	StateConfirmed
	StateCancelled
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateConfirmed:
		return "confirmed"
	case StateCancelled:
		return "cancelled"
	case StateExpired:
		return "expired"
	default:
		return "none"
	}
}

// Terminal reports whether s is absorbing.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled || s == StateExpired
}

// Choice is the requester's answer to a proposal.
type Choice string

const (
	ChoiceExecute Choice = "x"
	ChoiceCancel  Choice = "c"
	ChoiceChat    Choice = "t"
)

var (
	ErrNoProposal      = errors.New("no such proposal")
	ErrNotRequester    = errors.New("only the requester can answer")
	ErrPendingProposal = errors.New("requester already has a pending proposal")
	ErrUnknownTarget   = errors.New("moderation target not found")
	ErrUnknownChoice   = errors.New("unknown choice")
)

// Authorizer checks who may moderate and who may be moderated.
type Authorizer interface {
	CanModerate(ctx context.Context, chatID, userID int64) (bool, error)
	Eligible(ctx context.Context, chatID, targetID int64) (bool, error)
}

// Executor performs a moderation action on the chat platform.
type Executor interface {
	Execute(ctx context.Context, chatID int64, in Intent) error
}

// Resolver maps a classifier target such as "@bob" to a user id.
type Resolver interface {
	Resolve(chatID int64, ref string) (int64, bool)
}

// Recorder keeps an audit trail of resolved proposals.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// ChatFunc answers text the requester chose to treat as conversation.
type ChatFunc func(ctx context.Context, to surface.Target, userID int64, text string)

// IntentClassifier is satisfied by *Classifier.
type IntentClassifier interface {
	Classify(ctx context.Context, userID int64, text string) (Intent, error)
}

// Request is an incoming message considered for moderation.
type Request struct {
	Target      surface.Target
	RequesterID int64
	Text        string
	// ReplyToID is the author of the message being replied to, or 0.
	ReplyToID int64
}

// Proposal is a snapshot of a confirmation workflow.
type Proposal struct {
	ID          string
	Intent      Intent
	RequesterID int64
	Target      surface.Target
	Text        string
	Prompt      surface.Ref
	State       State
	Note        string
	CreatedAt   time.Time
	ResolvedAt  time.Time
}

// Entry is one audit record.
type Entry struct {
	ProposalID  string
	ChatID      int64
	RequesterID int64
	TargetID    int64
	Action      Action
	Reason      string
	Duration    time.Duration
	Confidence  float64
	State       State
	Note        string
	CreatedAt   time.Time
	ResolvedAt  time.Time
}

type pending struct {
	Proposal
	timer *time.Timer
}

// Deps wires a Pipeline to its collaborators. Recorder, Chat and Metrics
// may be nil.
type Deps struct {
	Classifier IntentClassifier
	Resolver   Resolver
	Authorizer Authorizer
	Executor   Executor
	Surface    surface.Surface
	Recorder   Recorder
	Chat       ChatFunc
	Metrics    *metrics.Metrics
	Timeout    time.Duration
	Clock      func() time.Time
}

// Pipeline owns every live proposal. A proposal leaves the map exactly
// once, and whoever removes it performs its terminal transition.
type Pipeline struct {
	deps Deps

	mu        sync.Mutex
	proposals map[string]*pending
	closed    bool
}

// NewPipeline creates a pipeline.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultConfirmTimeout
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Pipeline{deps: deps, proposals: make(map[string]*pending)}
}

// Consider classifies req and, when confident, posts a confirmation prompt.
// ErrNotModeration means the caller should treat the text as chat.
func (p *Pipeline) Consider(ctx context.Context, req Request) (Proposal, error) {
	in, err := p.deps.Classifier.Classify(ctx, req.RequesterID, req.Text)
	if err != nil {
		return Proposal{}, err
	}

	targetID, ok := p.resolve(req, in.Target)
	if !ok {
		return Proposal{}, ErrUnknownTarget
	}
	in.TargetID = targetID

	return p.Propose(ctx, req, in)
}

func (p *Pipeline) resolve(req Request, ref string) (int64, bool) {
	ref = strings.TrimSpace(ref)
	if strings.EqualFold(ref, "reply") {
		return req.ReplyToID, req.ReplyToID != 0
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return id, true
	}
	if p.deps.Resolver == nil {
		return 0, false
	}
	return p.deps.Resolver.Resolve(req.Target.ChatID, ref)
}

// Propose registers a proposal for in and shows the prompt to the requester.
func (p *Pipeline) Propose(ctx context.Context, req Request, in Intent) (Proposal, error) {
	pr := &pending{Proposal: Proposal{
		ID:          uuid.NewString(),
		Intent:      in,
		RequesterID: req.RequesterID,
		Target:      req.Target,
		Text:        req.Text,
		State:       StateProposed,
		CreatedAt:   p.deps.Clock(),
	}}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Proposal{}, ErrNoProposal
	}
	for _, other := range p.proposals {
		if other.RequesterID == req.RequesterID && other.Target.ChatID == req.Target.ChatID {
			p.mu.Unlock()
			return Proposal{}, ErrPendingProposal
		}
	}
	p.proposals[pr.ID] = pr
	p.mu.Unlock()

	ref, err := p.deps.Surface.Send(ctx, req.Target, PromptMessage(pr.Proposal))
	if err != nil {
		p.claim(pr.ID)
		return Proposal{}, fmt.Errorf("send confirmation prompt: %w", err)
	}

	p.mu.Lock()
	cur, live := p.proposals[pr.ID]
	if live {
		cur.Prompt = ref
		cur.timer = time.AfterFunc(p.deps.Timeout, func() { p.expire(pr.ID) })
	}
	snap := pr.Proposal
	p.mu.Unlock()

	// Close claimed it while the prompt was in flight, so nobody else will
	// remove the prompt.
	if !live {
		if err := p.deps.Surface.Delete(ctx, ref); err != nil {
			log.Warn().Err(err).Str("proposal_id", pr.ID).Msg("Failed to delete orphaned confirmation prompt")
		}
		return Proposal{}, ErrNoProposal
	}

	log.Info().
		Str("proposal_id", pr.ID).
		Int64("chat_id", req.Target.ChatID).
		Int64("user_id", req.RequesterID).
		Str("action", string(in.Action)).
		Int64("target_id", in.TargetID).
		Float64("confidence", in.Confidence).
		Msg("Moderation proposed")
	return snap, nil
}

// claim removes a live proposal. Only the caller that gets ok may finish it.
func (p *Pipeline) claim(id string) (*pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.proposals[id]
	if !ok {
		return nil, false
	}
	delete(p.proposals, id)
	if pr.timer != nil {
		pr.timer.Stop()
	}
	return pr, true
}

// Resolve applies the requester's choice. Anyone else gets ErrNotRequester
// and the proposal stays open.
func (p *Pipeline) Resolve(ctx context.Context, id string, userID int64, choice Choice) (Proposal, error) {
	switch choice {
	case ChoiceExecute, ChoiceCancel, ChoiceChat:
	default:
		return Proposal{}, ErrUnknownChoice
	}

	p.mu.Lock()
	pr, ok := p.proposals[id]
	if ok && pr.RequesterID != userID {
		p.mu.Unlock()
		return Proposal{}, ErrNotRequester
	}
	p.mu.Unlock()
	if !ok {
		return Proposal{}, ErrNoProposal
	}

	pr, ok = p.claim(id)
	if !ok {
		return Proposal{}, ErrNoProposal
	}

	switch choice {
	case ChoiceExecute:
		p.execute(ctx, pr)
	case ChoiceCancel:
		pr.finish(StateCancelled, "Cancelled. Nothing was done.", p.deps.Clock())
	case ChoiceChat:
		pr.finish(StateCancelled, "Okay, just chatting then.", p.deps.Clock())
	}

	p.conclude(ctx, pr)
	if choice == ChoiceChat && p.deps.Chat != nil {
		p.deps.Chat(ctx, pr.Target, pr.RequesterID, pr.Text)
	}
	return pr.Proposal, nil
}

func (p *Pipeline) execute(ctx context.Context, pr *pending) {
	now := p.deps.Clock
	chatID := pr.Target.ChatID

	allowed, err := p.deps.Authorizer.CanModerate(ctx, chatID, pr.RequesterID)
	if err != nil || !allowed {
		if err != nil {
			log.Warn().Err(err).Str("proposal_id", pr.ID).Msg("Permission check failed")
		}
		pr.finish(StateCancelled, "I can't do that for you here.", now())
		return
	}

	eligible, err := p.deps.Authorizer.Eligible(ctx, chatID, pr.Intent.TargetID)
	if err != nil || !eligible {
		if err != nil {
			log.Warn().Err(err).Str("proposal_id", pr.ID).Msg("Eligibility check failed")
		}
		pr.finish(StateCancelled, "That user can't be moderated.", now())
		return
	}

	if err := p.deps.Executor.Execute(ctx, chatID, pr.Intent); err != nil {
		log.Error().Err(err).
			Str("proposal_id", pr.ID).
			Int64("chat_id", chatID).
			Str("action", string(pr.Intent.Action)).
			Msg("Moderation action failed")
		pr.finish(StateCancelled, "That didn't work. Nothing was changed.", now())
		return
	}
	pr.finish(StateConfirmed, "Done: "+pr.Intent.Describe()+".", now())
}

// expire runs from the confirmation timer.
func (p *Pipeline) expire(id string) {
	pr, ok := p.claim(id)
	if !ok {
		return
	}
	pr.finish(StateExpired, "", p.deps.Clock())
	p.conclude(context.Background(), pr)
}

func (pr *pending) finish(s State, note string, at time.Time) {
	pr.State = s
	pr.Note = note
	pr.ResolvedAt = at
}

// conclude updates the prompt and records the outcome. Surface and audit
// failures are logged only.
func (p *Pipeline) conclude(ctx context.Context, pr *pending) {
	if pr.Prompt != (surface.Ref{}) {
		var err error
		if pr.State == StateExpired {
			err = p.deps.Surface.Delete(ctx, pr.Prompt)
		} else {
			err = p.deps.Surface.Edit(ctx, pr.Prompt, surface.Text(pr.Note))
		}
		if err != nil {
			log.Warn().Err(err).Str("proposal_id", pr.ID).Msg("Failed to update confirmation prompt")
		}
	}

	p.deps.Metrics.ProposalResolved(pr.State.String())
	log.Info().
		Str("proposal_id", pr.ID).
		Int64("user_id", pr.RequesterID).
		Str("state", pr.State.String()).
		Msg("Moderation proposal resolved")

	if p.deps.Recorder == nil {
		return
	}
	if err := p.deps.Recorder.Record(ctx, entryFor(pr.Proposal)); err != nil {
		log.Warn().Err(err).Str("proposal_id", pr.ID).Msg("Failed to record moderation audit entry")
	}
}

func entryFor(pr Proposal) Entry {
	return Entry{
		ProposalID:  pr.ID,
		ChatID:      pr.Target.ChatID,
		RequesterID: pr.RequesterID,
		TargetID:    pr.Intent.TargetID,
		Action:      pr.Intent.Action,
		Reason:      pr.Intent.Reason,
		Duration:    pr.Intent.Duration,
		Confidence:  pr.Intent.Confidence,
		State:       pr.State,
		Note:        pr.Note,
		CreatedAt:   pr.CreatedAt,
		ResolvedAt:  pr.ResolvedAt,
	}
}

// Pending returns the number of open proposals.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proposals)
}

// Close expires every open proposal and refuses new ones.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	ids := make([]string, 0, len(p.proposals))
	for id := range p.proposals {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.expire(id)
	}
}

// PromptMessage renders the confirmation prompt for pr.
func PromptMessage(pr Proposal) surface.Message {
	text := fmt.Sprintf("🛡️ Should I %s?\nConfidence: %.0f%%. Only the requester can answer.",
		pr.Intent.Describe(), pr.Intent.Confidence*100)
	return surface.Text(text).Row(
		surface.Action{Label: "✅ Execute", Data: EncodeCallback(pr.ID, ChoiceExecute)},
		surface.Action{Label: "❌ Cancel", Data: EncodeCallback(pr.ID, ChoiceCancel)},
	).Row(
		surface.Action{Label: "💬 Just chatting", Data: EncodeCallback(pr.ID, ChoiceChat)},
	)
}

// CallbackPrefix marks button data addressed to a proposal.
const CallbackPrefix = "mod:"

// EncodeCallback builds button data for a proposal choice.
func EncodeCallback(id string, c Choice) string {
	return CallbackPrefix + id + ":" + string(c)
}

// DecodeCallback splits proposal button data.
func DecodeCallback(data string) (string, Choice, bool) {
	rest, ok := strings.CutPrefix(data, CallbackPrefix)
	if !ok {
		return "", "", false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], Choice(rest[i+1:]), true
}
