package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BlockchainTx is the normalized record of one on-chain write attempt,
// successful or failed. Records are append-only: every call to a chain
// adapter's Add produces exactly one of these, and none is ever updated or
// deleted.
type BlockchainTx struct {
	AssetID           uuid.UUID  `json:"assetId"`
	CreationTime      time.Time  `json:"creation_time"`
	Tx                NullString `json:"tx,omitempty"`
	BlockNumber       NullString `json:"block_number,omitempty"`
	GasUsed           NullString `json:"gas_used,omitempty"`
	EffectiveGasPrice NullString `json:"effective_gas_price,omitempty"`
	Cost              NullString `json:"cost,omitempty"`
	Currency          NullString `json:"currency,omitempty"`
	From              NullString `json:"from,omitempty"`
	To                NullString `json:"to,omitempty"`
	ContractID        uint16     `json:"contract_id"`
	TxError           NullString `json:"tx_error,omitempty"`
}

// Successful reports whether the attempt produced a chain receipt.
func (b BlockchainTx) Successful() bool {
	return b.TxError == "" && b.Tx != ""
}

// BlockchainTxRepository represents an append-only repository of blockchain
// transaction attempts, keyed by (asset id, creation time) with a secondary
// lookup by transaction hash.
type BlockchainTxRepository interface {
	Add(context.Context, BlockchainTx) error
	GetByTx(context.Context, string) (BlockchainTx, error)
	GetByAssetID(context.Context, uuid.UUID) ([]BlockchainTx, error)
}

// ErrTxNotFoundByHash is an error type for when a transaction is not found by its hash
type ErrTxNotFoundByHash struct {
	Hash string
}

// ErrTxNotFoundByIDs is an error type for when a transaction is not found by its primary key
type ErrTxNotFoundByIDs struct {
	AssetID      uuid.UUID
	CreationTime time.Time
}

// ErrTxAmbiguous is an error type for when the hash index resolves to more than one record
type ErrTxAmbiguous struct {
	Hash    string
	Matches int
}

func (e ErrTxNotFoundByHash) Error() string {
	return fmt.Sprintf("transaction not found by hash: %s", e.Hash)
}

func (e ErrTxNotFoundByIDs) Error() string {
	return fmt.Sprintf("transaction not found by asset %s at %s", e.AssetID, e.CreationTime.Format(time.RFC3339Nano))
}

func (e ErrTxAmbiguous) Error() string {
	return fmt.Sprintf("transaction hash %s is ambiguous: %d records", e.Hash, e.Matches)
}
