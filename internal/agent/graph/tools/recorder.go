package tools

import (
	"context"
	"sync"

	"github.com/questor-agent/server/internal/reconcile"
)

// Recorder collects the state effects of tool calls made during one agent turn.
type Recorder struct {
	mu      sync.Mutex
	effects []reconcile.Effect
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(e reconcile.Effect) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, e)
}

// Effects returns the recorded effects in call order.
func (r *Recorder) Effects() []reconcile.Effect {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reconcile.Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

type recorderKey struct{}

// WithRecorder attaches r to ctx so tools invoked under ctx record into it.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFrom returns the recorder on ctx, or nil. A nil Recorder discards.
func RecorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}
