package docs

import (
	"context"
	"errors"
	"sync"

	"github.com/hearthdocs/thumbnail-service/internal/domain"
)

var ErrNotFound = errors.New("document not found")

// Directory is the externally-owned document metadata and permission store.
// This subsystem only reads through it; any error from CanAccessDocument is
// treated as denial by callers.
type Directory interface {
	GetDocument(ctx context.Context, documentID, userID string) (*domain.Document, error)
	CanAccessDocument(ctx context.Context, userID, documentID string) (bool, error)
	GetUserHousehold(ctx context.Context, userID string) (string, error)
}

// MemoryDirectory backs dev mode and tests.
type MemoryDirectory struct {
	mu         sync.RWMutex
	documents  map[string]*domain.Document
	households map[string]string
	denied     map[string]bool
	accessErr  error
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		documents:  make(map[string]*domain.Document),
		households: make(map[string]string),
		denied:     make(map[string]bool),
	}
}

func (d *MemoryDirectory) AddDocument(doc *domain.Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *doc
	d.documents[doc.ID] = &clone
}

func (d *MemoryDirectory) SetHousehold(userID, householdID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.households[userID] = householdID
}

// DenyAccess blocks one user from one document.
func (d *MemoryDirectory) DenyAccess(userID, documentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denied[userID+"/"+documentID] = true
}

// FailAccessChecks makes CanAccessDocument return the given error, for
// exercising the fail-closed path.
func (d *MemoryDirectory) FailAccessChecks(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accessErr = err
}

func (d *MemoryDirectory) GetDocument(_ context.Context, documentID, _ string) (*domain.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.documents[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (d *MemoryDirectory) CanAccessDocument(_ context.Context, userID, documentID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.accessErr != nil {
		return false, d.accessErr
	}
	if d.denied[userID+"/"+documentID] {
		return false, nil
	}
	_, ok := d.documents[documentID]
	return ok, nil
}

func (d *MemoryDirectory) GetUserHousehold(_ context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.households[userID], nil
}
