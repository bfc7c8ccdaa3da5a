package postgres

import (
	"database/sql"
)

// Repositories is the set of postgres-backed stores the minting core uses
type Repositories struct {
	AssetRepository        *AssetRepository
	BlockchainTxRepository *BlockchainTxRepository
	KeyPairRepository      *KeyPairRepository
	ContractRepository     *ContractRepository
	OwnerRepository        *OwnerRepository
}

// NewRepositories creates the full set of repositories over one connection pool
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		AssetRepository:        NewAssetRepository(db),
		BlockchainTxRepository: NewBlockchainTxRepository(db),
		KeyPairRepository:      NewKeyPairRepository(db),
		ContractRepository:     NewContractRepository(db),
		OwnerRepository:        NewOwnerRepository(db),
	}
}
