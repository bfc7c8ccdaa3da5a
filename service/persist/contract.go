package persist

import (
	"context"
	"fmt"
)

const (
	// BlockchainEVM selects the EVM-style chain adapter
	BlockchainEVM Blockchain = "evm"
	// BlockchainSui selects the JSON-RPC/BCS-style chain adapter
	BlockchainSui Blockchain = "sui"
)

// Blockchain represents the family of chain a contract is deployed on
type Blockchain string

// Contract represents a deployed smart contract the platform mints against.
// Resolved once when a chain adapter is constructed and read-only thereafter.
// OwnerSecret is ciphered; OwnerCash is the gas object used by chains that
// require one.
type Contract struct {
	ID            uint16     `json:"contract_id"`
	Blockchain    Blockchain `json:"blockchain"`
	ChainID       int64      `json:"chain_id"`
	Address       Address    `json:"address"`
	OwnerAddress  Address    `json:"owner_address"`
	OwnerSecret   string     `json:"-"`
	OwnerCash     NullString `json:"owner_cash,omitempty"`
	Confirmations uint16     `json:"confirmations"`
}

// ContractRepository represents a repository for interacting with persisted contracts
type ContractRepository interface {
	GetByID(context.Context, uint16) (Contract, error)
}

// ErrContractNotFoundByID is an error type for when a contract is not found by id
type ErrContractNotFoundByID struct {
	ID uint16
}

func (e ErrContractNotFoundByID) Error() string {
	return fmt.Sprintf("contract not found by ID: %d", e.ID)
}

func (b Blockchain) String() string {
	return string(b)
}
