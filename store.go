package geoquest

import (
	"context"
	"time"

	"github.com/minus-twelve/geoquest/types"
)

// Store persists challenge sessions keyed by session id.
type Store interface {
	Create(ctx context.Context, id string, session types.Session) error
	Get(ctx context.Context, id string) (types.Session, error)
	Put(ctx context.Context, id string, session types.Session) error
	Delete(ctx context.Context, id string) error
	Cleanup(ctx context.Context, ttl time.Duration) error
	Close() error
}
