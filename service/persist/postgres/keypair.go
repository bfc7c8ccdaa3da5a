package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/truly-video/go-truly/service/persist"
)

// KeyPairRepository represents a keypair repository in the postgres database
type KeyPairRepository struct {
	db              *sql.DB
	insertStmt      *sql.Stmt
	getByUserIDStmt *sql.Stmt
}

// NewKeyPairRepository creates a new postgres repository for interacting with keypairs
func NewKeyPairRepository(db *sql.DB) *KeyPairRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	insertStmt, err := db.PrepareContext(ctx, `INSERT INTO keypairs (USER_ID,ADDRESS,PUBLIC_KEY,PRIVATE_KEY,CREATED_AT,LAST_UPDATED) VALUES ($1,$2,$3,$4,now(),now());`)
	checkNoErr(err)

	getByUserIDStmt, err := db.PrepareContext(ctx, `SELECT USER_ID,ADDRESS,PUBLIC_KEY,PRIVATE_KEY,CREATED_AT,LAST_UPDATED FROM keypairs WHERE USER_ID = $1;`)
	checkNoErr(err)

	return &KeyPairRepository{db: db, insertStmt: insertStmt, getByUserIDStmt: getByUserIDStmt}
}

// Add inserts a keypair. The primary key on user id makes the row immutable:
// a second insert for the same user fails with ErrKeyPairAlreadyExists and the
// caller is expected to re-read the winning row.
func (k *KeyPairRepository) Add(pCtx context.Context, pKeyPair persist.KeyPair) error {
	_, err := k.insertStmt.ExecContext(pCtx, pKeyPair.UserID, pKeyPair.Address, pKeyPair.PublicKey, pKeyPair.PrivateKey)
	if err != nil {
		if isUniqueViolation(err) {
			return persist.ErrKeyPairAlreadyExists{UserID: pKeyPair.UserID}
		}
		return err
	}
	return nil
}

// GetByUserID retrieves a keypair by the owning user's id
func (k *KeyPairRepository) GetByUserID(pCtx context.Context, pUserID string) (persist.KeyPair, error) {
	keypair := persist.KeyPair{}
	err := k.getByUserIDStmt.QueryRowContext(pCtx, pUserID).Scan(&keypair.UserID, &keypair.Address, &keypair.PublicKey, &keypair.PrivateKey, &keypair.CreationTime, &keypair.LastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return persist.KeyPair{}, persist.ErrKeyPairNotFoundByUserID{UserID: pUserID}
		}
		return persist.KeyPair{}, err
	}
	return keypair, nil
}
