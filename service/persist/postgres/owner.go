package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/truly-video/go-truly/service/persist"
)

// OwnerRepository represents the user/asset ownership relation in the postgres database
type OwnerRepository struct {
	db                   *sql.DB
	getByUserAssetIDStmt *sql.Stmt
}

// NewOwnerRepository creates a new postgres repository for interacting with asset ownership
func NewOwnerRepository(db *sql.DB) *OwnerRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	getByUserAssetIDStmt, err := db.PrepareContext(ctx, `SELECT 1 FROM owners WHERE ASSET_ID = $1 AND USER_ID = $2;`)
	checkNoErr(err)

	return &OwnerRepository{db: db, getByUserAssetIDStmt: getByUserAssetIDStmt}
}

// GetByUserAssetID confirms the ownership relation between a user and an asset
func (o *OwnerRepository) GetByUserAssetID(pCtx context.Context, pAssetID uuid.UUID, pUserID string) error {
	var one int
	err := o.getByUserAssetIDStmt.QueryRowContext(pCtx, pAssetID.String(), pUserID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return persist.ErrAssetNotOwnedByUser{AssetID: pAssetID, UserID: pUserID}
		}
		return err
	}
	return nil
}
