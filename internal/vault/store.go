package vault

import (
	"context"
	"time"

	"github.com/iliyamo/webmail-relay/internal/model"
)

// Store persists sealed entries. Find reports a missing entry with
// repository.ErrNotFound and never filters on expiry; the vault decides.
type Store interface {
	Upsert(ctx context.Context, e model.VaultEntry) error
	Find(ctx context.Context, tokenHash string) (model.VaultEntry, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
