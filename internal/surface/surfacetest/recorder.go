// Package surfacetest provides an in-memory Surface for tests.
package surfacetest

import (
	"context"
	"sync"

	"anya-bot/internal/surface"
)

// Sent is a message recorded by Recorder.
type Sent struct {
	Ref     surface.Ref
	Target  surface.Target
	Message surface.Message
}

// Recorder implements surface.Surface and remembers every call.
// Set the Err fields to make the matching method fail.
type Recorder struct {
	mu      sync.Mutex
	nextID  int
	sent    []Sent
	edits   map[surface.Ref][]surface.Message
	deleted []surface.Ref
	notes   []string

	SendErr   error
	EditErr   error
	DeleteErr error
	NotifyErr error
}

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{edits: make(map[surface.Ref][]surface.Message)}
}

func (r *Recorder) Send(_ context.Context, to surface.Target, msg surface.Message) (surface.Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil {
		return surface.Ref{}, r.SendErr
	}
	r.nextID++
	ref := surface.Ref{ChatID: to.ChatID, MessageID: r.nextID}
	r.sent = append(r.sent, Sent{Ref: ref, Target: to, Message: msg})
	return ref, nil
}

func (r *Recorder) Edit(_ context.Context, ref surface.Ref, msg surface.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EditErr != nil {
		return r.EditErr
	}
	r.edits[ref] = append(r.edits[ref], msg)
	return nil
}

func (r *Recorder) Delete(_ context.Context, ref surface.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	r.deleted = append(r.deleted, ref)
	return nil
}

func (r *Recorder) Notify(_ context.Context, _ surface.Target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, text)
	return r.NotifyErr
}

// Sent returns a copy of every sent message.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Edits returns the edits applied to ref, oldest first.
func (r *Recorder) Edits(ref surface.Ref) []surface.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]surface.Message(nil), r.edits[ref]...)
}

// Deleted returns every deleted ref.
func (r *Recorder) Deleted() []surface.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]surface.Ref(nil), r.deleted...)
}

// Notes returns every notification text, including failed ones.
func (r *Recorder) Notes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes...)
}
