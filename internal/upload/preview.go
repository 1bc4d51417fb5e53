package upload

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PreviewPrefix is the URL path under which preview handles are served.
const PreviewPrefix = "/ui/preview/"

// Previews hands out URLs for in-memory image previews. Every URL returned by
// Acquire stays valid until it is passed to Release.
type Previews struct {
	mu    sync.RWMutex
	files map[string]File
}

func NewPreviews() *Previews {
	return &Previews{files: make(map[string]File)}
}

func (p *Previews) Acquire(f File) string {
	id := uuid.NewString()

	p.mu.Lock()
	p.files[id] = f
	p.mu.Unlock()

	return PreviewPrefix + id
}

// Open looks a preview up by its id (the last URL segment).
func (p *Previews) Open(id string) (File, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	f, ok := p.files[id]
	return f, ok
}

// Release revokes a preview URL. Unknown or empty URLs are ignored.
func (p *Previews) Release(url string) {
	id := strings.TrimPrefix(url, PreviewPrefix)
	if id == "" {
		return
	}

	p.mu.Lock()
	delete(p.files, id)
	p.mu.Unlock()
}

func (p *Previews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.files)
}
