package offload

import "sync"

// Experience is one (state, action, reward) sample.
type Experience struct {
	Features []float64
	Action   int
	Reward   float64
}

// ExperienceBuffer is a bounded ring of experiences. When full, the oldest
// entry is overwritten.
type ExperienceBuffer struct {
	mu    sync.Mutex
	items []Experience
	next  int
	full  bool
	added int64
}

// NewExperienceBuffer returns a buffer holding at most capacity entries.
func NewExperienceBuffer(capacity int) *ExperienceBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ExperienceBuffer{items: make([]Experience, capacity)}
}

// Add stores e and returns the total number of experiences ever added.
func (b *ExperienceBuffer) Add(e Experience) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.next] = e
	b.next = (b.next + 1) % len(b.items)
	if b.next == 0 {
		b.full = true
	}
	b.added++
	return b.added
}

// Len returns the number of stored experiences.
func (b *ExperienceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.items)
	}
	return b.next
}

// Cap returns the buffer capacity.
func (b *ExperienceBuffer) Cap() int { return len(b.items) }

// Snapshot returns the stored experiences from oldest to newest. The result
// does not alias the buffer.
func (b *ExperienceBuffer) Snapshot() []Experience {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]Experience(nil), b.items[:b.next]...)
	}
	out := make([]Experience, 0, len(b.items))
	out = append(out, b.items[b.next:]...)
	return append(out, b.items[:b.next]...)
}

// Reset drops every stored experience.
func (b *ExperienceBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		b.items[i] = Experience{}
	}
	b.next, b.full, b.added = 0, false, 0
}
