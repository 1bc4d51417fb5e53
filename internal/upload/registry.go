package upload

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry keeps one Form per browser session and tears down idle ones.
type Registry struct {
	mu        sync.Mutex
	forms     map[string]*Form
	previews  *Previews
	submitter Submitter
	ttl       time.Duration
	logger    *zap.Logger
}

func NewRegistry(previews *Previews, submitter Submitter, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		forms:     make(map[string]*Form),
		previews:  previews,
		submitter: submitter,
		ttl:       ttl,
		logger:    logger,
	}
}

// Get returns the form for id, creating it on first use or when the
// previous one was closed.
func (r *Registry) Get(id string) *Form {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.forms[id]; ok && !f.isClosed() {
		return f
	}
	f := NewForm(r.previews, r.submitter, r.logger.With(zap.String("form", id)))
	r.forms[id] = f
	return f
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

// Sweep closes and forgets forms idle since before now-ttl. A form with a
// submission in flight is kept.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var stale []*Form
	for id, f := range r.forms {
		if now.Sub(f.IdleSince()) < r.ttl || f.Loading() {
			continue
		}
		stale = append(stale, f)
		delete(r.forms, id)
	}
	r.mu.Unlock()

	for _, f := range stale {
		f.Close()
	}
	if len(stale) > 0 {
		r.logger.Debug("swept idle forms", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done, then closes all forms.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Close tears down every form.
func (r *Registry) Close() {
	r.mu.Lock()
	forms := r.forms
	r.forms = make(map[string]*Form)
	r.mu.Unlock()

	for _, f := range forms {
		f.Close()
	}
}
