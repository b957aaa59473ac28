package review

import (
	"context"
	"sort"
	"sync"

	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

// Directory answers who may review what and who the administrators are. The
// roster itself is maintained outside the workflow and mirrored here.
type Directory interface {
	Member(ctx context.Context, userID string) (*Member, error)
	PutMember(ctx context.Context, m *Member) error
	// Admins returns the user ids that receive administrative notifications.
	Admins(ctx context.Context) ([]string, error)
}

// ReviewerPolicy decides whether a reviewer may take a document.
type ReviewerPolicy interface {
	CheckReviewer(ctx context.Context, doc *Document, reviewerID string) error
}

// SpecializationPolicy requires the reviewer to be a directory member with
// the reviewer role and, when the document names a specialization, to cover
// it.
type SpecializationPolicy struct {
	Directory Directory
}

func (p SpecializationPolicy) CheckReviewer(ctx context.Context, doc *Document, reviewerID string) error {
	const op = "review.CheckReviewer"
	m, err := p.Directory.Member(ctx, reviewerID)
	if err != nil {
		return err
	}
	if !m.HasRole(RoleReviewer) {
		return errs.Validation(op, "user %s is not a reviewer", reviewerID)
	}
	if doc.SpecializationID != "" && !m.Covers(doc.SpecializationID) {
		return errs.Validation(op, "reviewer %s does not cover specialization %s", reviewerID, doc.SpecializationID)
	}
	return nil
}

type MemoryDirectory struct {
	mu      sync.RWMutex
	members map[string]*Member
}

func NewMemoryDirectory(members ...*Member) *MemoryDirectory {
	d := &MemoryDirectory{members: make(map[string]*Member)}
	for _, m := range members {
		d.members[m.UserID] = m.Clone()
	}
	return d
}

func (d *MemoryDirectory) Member(_ context.Context, userID string) (*Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[userID]
	if !ok {
		return nil, errs.NotFound("review.Member", "user %s not found in directory", userID)
	}
	return m.Clone(), nil
}

func (d *MemoryDirectory) PutMember(_ context.Context, m *Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.UserID] = m.Clone()
	return nil
}

func (d *MemoryDirectory) Admins(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	for id, m := range d.members {
		if m.HasRole(RoleAdmin) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
