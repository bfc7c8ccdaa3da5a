package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/truly-video/go-truly/service/persist"
)

// AssetRepository represents an asset repository in the postgres database
type AssetRepository struct {
	db                *sql.DB
	getByIDStmt       *sql.Stmt
	setMintStatusStmt *sql.Stmt
}

// NewAssetRepository creates a new postgres repository for interacting with assets
func NewAssetRepository(db *sql.DB) *AssetRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT ASSET_ID,CREATED_AT,LAST_UPDATED,HASH,HASH_ALGORITHM,MINT_STATUS,MINTED_TX,VIDEO_LICENSING_STATUS,COUNTER
		FROM assets WHERE ASSET_ID = $1;`)
	checkNoErr(err)

	setMintStatusStmt, err := db.PrepareContext(ctx, `UPDATE assets SET MINT_STATUS = $1, MINTED_TX = $2, LAST_UPDATED = now() WHERE ASSET_ID = $3;`)
	checkNoErr(err)

	return &AssetRepository{db: db, getByIDStmt: getByIDStmt, setMintStatusStmt: setMintStatusStmt}
}

// GetByID retrieves an asset by its ID
func (a *AssetRepository) GetByID(pCtx context.Context, pID uuid.UUID) (persist.Asset, error) {
	asset := persist.Asset{}
	err := a.getByIDStmt.QueryRowContext(pCtx, pID.String()).Scan(&asset.ID, &asset.CreationTime, &asset.LastUpdated, &asset.Hash, &asset.HashAlgorithm, &asset.MintStatus, &asset.MintedTx, &asset.VideoLicensingStatus, &asset.Counter)
	if err != nil {
		if err == sql.ErrNoRows {
			return persist.Asset{}, persist.ErrAssetNotFoundByID{ID: pID}
		}
		return persist.Asset{}, err
	}
	return asset, nil
}

// SetMintStatus updates the mint-status triple (status, minted tx, last
// updated) in a single statement so concurrent writers are last-writer-wins on
// the whole triple and never interleave. A nil tx clears the minted tx column.
func (a *AssetRepository) SetMintStatus(pCtx context.Context, pID uuid.UUID, pTx persist.NullString, pStatus persist.MintStatus) error {
	res, err := a.setMintStatusStmt.ExecContext(pCtx, pStatus, pTx, pID.String())
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return persist.ErrAssetNotFoundByID{ID: pID}
	}
	return nil
}
