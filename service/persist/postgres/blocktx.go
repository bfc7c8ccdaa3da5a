package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/truly-video/go-truly/service/persist"
)

// BlockchainTxRepository represents a blockchain transaction repository in the
// postgres database. The table is append-only; there is no update statement by
// construction.
type BlockchainTxRepository struct {
	db               *sql.DB
	insertStmt       *sql.Stmt
	getKeysByTxStmt  *sql.Stmt
	getByIDsStmt     *sql.Stmt
	getByAssetIDStmt *sql.Stmt
}

// NewBlockchainTxRepository creates a new postgres repository for interacting with blockchain transactions
func NewBlockchainTxRepository(db *sql.DB) *BlockchainTxRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	insertStmt, err := db.PrepareContext(ctx, `INSERT INTO blockchain_txs (ASSET_ID,CREATION_TIME,TX,BLOCK_NUMBER,GAS_USED,EFFECTIVE_GAS_PRICE,COST,CURRENCY,FROM_ADDRESS,TO_ADDRESS,CONTRACT_ID,TX_ERROR) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`)
	checkNoErr(err)

	getKeysByTxStmt, err := db.PrepareContext(ctx, `SELECT ASSET_ID,CREATION_TIME FROM blockchain_txs WHERE TX = $1;`)
	checkNoErr(err)

	getByIDsStmt, err := db.PrepareContext(ctx, `SELECT ASSET_ID,CREATION_TIME,TX,BLOCK_NUMBER,GAS_USED,EFFECTIVE_GAS_PRICE,COST,CURRENCY,FROM_ADDRESS,TO_ADDRESS,CONTRACT_ID,TX_ERROR
		FROM blockchain_txs WHERE ASSET_ID = $1 AND CREATION_TIME = $2;`)
	checkNoErr(err)

	getByAssetIDStmt, err := db.PrepareContext(ctx, `SELECT ASSET_ID,CREATION_TIME,TX,BLOCK_NUMBER,GAS_USED,EFFECTIVE_GAS_PRICE,COST,CURRENCY,FROM_ADDRESS,TO_ADDRESS,CONTRACT_ID,TX_ERROR
		FROM blockchain_txs WHERE ASSET_ID = $1 ORDER BY CREATION_TIME ASC;`)
	checkNoErr(err)

	return &BlockchainTxRepository{db: db, insertStmt: insertStmt, getKeysByTxStmt: getKeysByTxStmt, getByIDsStmt: getByIDsStmt, getByAssetIDStmt: getByAssetIDStmt}
}

// Add appends a transaction record. (asset id, creation time) is presumed
// unique by construction; a primary key violation is surfaced, never resolved
// by overwriting.
func (b *BlockchainTxRepository) Add(pCtx context.Context, pTx persist.BlockchainTx) error {
	_, err := b.insertStmt.ExecContext(pCtx, pTx.AssetID.String(), pTx.CreationTime, pTx.Tx, pTx.BlockNumber, pTx.GasUsed, pTx.EffectiveGasPrice, pTx.Cost, pTx.Currency, pTx.From, pTx.To, pTx.ContractID, pTx.TxError)
	return err
}

// GetByTx resolves a transaction through the hash index, then re-reads the
// full record by primary key.
func (b *BlockchainTxRepository) GetByTx(pCtx context.Context, pHash string) (persist.BlockchainTx, error) {
	rows, err := b.getKeysByTxStmt.QueryContext(pCtx, pHash)
	if err != nil {
		return persist.BlockchainTx{}, err
	}
	defer rows.Close()

	type txKey struct {
		assetID      uuid.UUID
		creationTime time.Time
	}

	keys := make([]txKey, 0, 1)
	for rows.Next() {
		var key txKey
		if err := rows.Scan(&key.assetID, &key.creationTime); err != nil {
			return persist.BlockchainTx{}, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return persist.BlockchainTx{}, err
	}

	if len(keys) == 0 {
		return persist.BlockchainTx{}, persist.ErrTxNotFoundByHash{Hash: pHash}
	}
	if len(keys) > 1 {
		return persist.BlockchainTx{}, persist.ErrTxAmbiguous{Hash: pHash, Matches: len(keys)}
	}

	return b.GetByIDs(pCtx, keys[0].assetID, keys[0].creationTime)
}

// GetByIDs retrieves a transaction by its primary key
func (b *BlockchainTxRepository) GetByIDs(pCtx context.Context, pAssetID uuid.UUID, pCreationTime time.Time) (persist.BlockchainTx, error) {
	tx := persist.BlockchainTx{}
	err := b.getByIDsStmt.QueryRowContext(pCtx, pAssetID.String(), pCreationTime).Scan(&tx.AssetID, &tx.CreationTime, &tx.Tx, &tx.BlockNumber, &tx.GasUsed, &tx.EffectiveGasPrice, &tx.Cost, &tx.Currency, &tx.From, &tx.To, &tx.ContractID, &tx.TxError)
	if err != nil {
		if err == sql.ErrNoRows {
			return persist.BlockchainTx{}, persist.ErrTxNotFoundByIDs{AssetID: pAssetID, CreationTime: pCreationTime}
		}
		return persist.BlockchainTx{}, err
	}
	return tx, nil
}

// GetByAssetID retrieves all transactions for an asset ordered by creation time ascending
func (b *BlockchainTxRepository) GetByAssetID(pCtx context.Context, pAssetID uuid.UUID) ([]persist.BlockchainTx, error) {
	rows, err := b.getByAssetIDStmt.QueryContext(pCtx, pAssetID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]persist.BlockchainTx, 0, 5)
	for rows.Next() {
		tx := persist.BlockchainTx{}
		if err := rows.Scan(&tx.AssetID, &tx.CreationTime, &tx.Tx, &tx.BlockNumber, &tx.GasUsed, &tx.EffectiveGasPrice, &tx.Cost, &tx.Currency, &tx.From, &tx.To, &tx.ContractID, &tx.TxError); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return txs, nil
}

// isUniqueViolation reports whether err is a postgres unique-key rejection.
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
