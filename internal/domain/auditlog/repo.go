package auditlog

import (
	"context"
)

// Repository persists and queries audit trail entries. The trail is
// append-only; there are no update or delete operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}
