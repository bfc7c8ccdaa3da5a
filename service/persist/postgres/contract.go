package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/truly-video/go-truly/service/persist"
)

// ContractRepository represents a contract repository in the postgres database
type ContractRepository struct {
	db          *sql.DB
	getByIDStmt *sql.Stmt
}

// NewContractRepository creates a new postgres repository for interacting with contracts
func NewContractRepository(db *sql.DB) *ContractRepository {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT CONTRACT_ID,BLOCKCHAIN,CHAIN_ID,ADDRESS,OWNER_ADDRESS,OWNER_SECRET,OWNER_CASH,CONFIRMATIONS FROM contracts WHERE CONTRACT_ID = $1;`)
	checkNoErr(err)

	return &ContractRepository{db: db, getByIDStmt: getByIDStmt}
}

// GetByID retrieves a contract descriptor by its id
func (c *ContractRepository) GetByID(pCtx context.Context, pID uint16) (persist.Contract, error) {
	contract := persist.Contract{}
	var blockchain string
	err := c.getByIDStmt.QueryRowContext(pCtx, pID).Scan(&contract.ID, &blockchain, &contract.ChainID, &contract.Address, &contract.OwnerAddress, &contract.OwnerSecret, &contract.OwnerCash, &contract.Confirmations)
	if err != nil {
		if err == sql.ErrNoRows {
			return persist.Contract{}, persist.ErrContractNotFoundByID{ID: pID}
		}
		return persist.Contract{}, err
	}
	contract.Blockchain = persist.Blockchain(blockchain)
	return contract, nil
}
