package coalesce

import (
	"sync"
	"time"
)

// Key identifies the in-flight unit: one (document, content version) pair.
func Key(documentID, sourceHash string) string {
	return documentID + "@" + sourceHash
}

type mark struct {
	seq       uint64
	jobID     string
	expiresAt time.Time
}

// Registry tracks which (document, content version) pairs have a generation
// job in flight so N concurrent cache-miss readers produce exactly one job.
// Marks are cleared on job completion and, independently, expire after a hard
// ceiling so a crashed worker cannot wedge a pair forever.
type Registry struct {
	mu      sync.Mutex
	marks   map[string]mark
	ceiling time.Duration
	seq     uint64
}

func NewRegistry(ceiling time.Duration) *Registry {
	if ceiling <= 0 {
		ceiling = 2 * time.Minute
	}
	return &Registry{
		marks:   make(map[string]mark),
		ceiling: ceiling,
	}
}

// MarkIfFree atomically claims the key. It returns true only for the single
// caller that won the race; losers must not enqueue a second job.
func (r *Registry) MarkIfFree(key string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.marks[key]; ok && now.Before(m.expiresAt) {
		return false
	}

	r.seq++
	seq := r.seq
	r.marks[key] = mark{seq: seq, expiresAt: now.Add(r.ceiling)}

	// Ceiling timer races the completion callback; whichever fires first
	// removes the mark. The sequence guard keeps a stale timer from
	// clearing a newer mark for the same key.
	time.AfterFunc(r.ceiling, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if m, ok := r.marks[key]; ok && m.seq == seq {
			delete(r.marks, key)
		}
	})

	return true
}

// SetJob records the winner's job so losers can hand the same jobID back.
func (r *Registry) SetJob(key, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.marks[key]; ok {
		m.jobID = jobID
		r.marks[key] = m
	}
}

// InProgress reports whether a live mark exists, with the jobID if known.
func (r *Registry) InProgress(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.marks[key]
	if !ok {
		return "", false
	}
	if time.Now().After(m.expiresAt) {
		delete(r.marks, key)
		return "", false
	}
	return m.jobID, true
}

// Clear releases the mark, normally from the job completion path.
func (r *Registry) Clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.marks, key)
}
