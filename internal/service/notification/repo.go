package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

// Repository persists notification events. Implementations must make Create
// idempotent on Event.ID so a retried insert never duplicates history.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	// ListByUser returns the user's events newest first and the total count.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Event, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead sets ReadAt if unset and returns the stored event.
	MarkRead(ctx context.Context, id string, readAt time.Time) (*Event, error)
	MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error)
}

// MemoryRepository is an in-process Repository used by tests and STORE=memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[string]*Event
	byUser map[string][]*Event // creation order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[string]*Event),
		byUser: make(map[string][]*Event),
	}
}

func (r *MemoryRepository) Create(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.ID]; ok {
		return nil
	}
	stored := e.Clone()
	r.events[e.ID] = stored
	r.byUser[e.RecipientUserID] = append(r.byUser[e.RecipientUserID], stored)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, errs.NotFound("notification.Get", "notification %s not found", id)
	}
	return e.Clone(), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]*Event, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.byUser[userID]
	newest := make([]*Event, len(all))
	for i, e := range all {
		newest[len(all)-1-i] = e
	}
	sort.SliceStable(newest, func(i, j int) bool {
		return newest[i].CreatedAt.After(newest[j].CreatedAt)
	})
	total := len(newest)
	if offset >= total {
		return []*Event{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]*Event, 0, end-offset)
	for _, e := range newest[offset:end] {
		out = append(out, e.Clone())
	}
	return out, total, nil
}

func (r *MemoryRepository) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.byUser[userID] {
		if e.Unread() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, id string, readAt time.Time) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, errs.NotFound("notification.MarkRead", "notification %s not found", id)
	}
	if e.ReadAt == nil {
		t := readAt
		e.ReadAt = &t
	}
	return e.Clone(), nil
}

func (r *MemoryRepository) MarkAllRead(_ context.Context, userID string, readAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.byUser[userID] {
		if e.ReadAt == nil {
			t := readAt
			e.ReadAt = &t
			n++
		}
	}
	return n, nil
}
