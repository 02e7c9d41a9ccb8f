package memory

import (
	"context"
	"slices"

	"ordertx/internal/core/id"
	"ordertx/internal/domain/audit"
)

const auditTable = "audit_log"

var _ audit.Repository = (*AuditRepo)(nil)

// AuditRepo keeps audit entries in a Store.
type AuditRepo struct {
	s *Store
}

// NewAuditRepo creates an audit repository over s.
func NewAuditRepo(s *Store) *AuditRepo {
	return &AuditRepo{s: s}
}

func (r *AuditRepo) Create(ctx context.Context, e *audit.Entry) error {
	return r.s.write(ctx, rowKey{auditTable, e.ID}, func() (func(), error) {
		r.s.audit = append(r.s.audit, *e)
		return func() {
			r.s.audit = slices.DeleteFunc(r.s.audit, func(x audit.Entry) bool { return x.ID == e.ID })
		}, nil
	})
}

func (r *AuditRepo) ListByEntity(_ context.Context, entityType string, entityID id.ID, limit int) ([]*audit.Entry, error) {
	r.s.mu.Lock()
	var out []*audit.Entry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, &e)
		}
	}
	r.s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b *audit.Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []*audit.Entry{}
	}
	return out, nil
}
