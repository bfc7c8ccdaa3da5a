package persist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// OwnerRepository represents the ownership relation between users and assets.
// The mint coordinator consumes it only as a predicate: a successful
// GetByUserAssetID confirms the user owns the asset.
type OwnerRepository interface {
	GetByUserAssetID(context.Context, uuid.UUID, string) error
}

// ErrAssetNotOwnedByUser is an error type for when an asset does not belong to the requesting user
type ErrAssetNotOwnedByUser struct {
	AssetID uuid.UUID
	UserID  string
}

func (e ErrAssetNotOwnedByUser) Error() string {
	return fmt.Sprintf("asset %s is not owned by user %s", e.AssetID, e.UserID)
}
