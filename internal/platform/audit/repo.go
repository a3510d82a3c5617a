package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repo is the append-only persistence contract. There is deliberately no
// update or delete: the trail is immutable.
type Repo interface {
	Insert(ctx context.Context, e *Entry) error
	Search(ctx context.Context, q Query) ([]*Entry, int, error)
}

// Query filters the trail for compliance reporting. All filters are
// exact-match; zero values are ignored.
type Query struct {
	ActorID    uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	Action     Action
	OrgID      uuid.UUID
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
