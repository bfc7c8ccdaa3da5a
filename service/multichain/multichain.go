// Package multichain defines the chain adapter contract: a driver that can
// anchor an asset hash on one specific chain backend and read it back,
// normalized so callers never see a chain's wire encoding.
package multichain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/truly-video/go-truly/service/persist"
)

const (
	// ContentStateActive represents content that is live on chain
	ContentStateActive ContentState = "Active"
	// ContentStateInactive represents content that has been deactivated on chain
	ContentStateInactive ContentState = "Inactive"
)

// ContentState represents the on-chain state of an asset's content record
type ContentState string

// ContentInfo is the normalized on-chain content of a minted asset
type ContentInfo struct {
	Hash          string       `json:"hash"`
	HashAlgorithm string       `json:"hash_algorithm,omitempty"`
	URI           *string      `json:"uri,omitempty"`
	Price         *uint64      `json:"price,omitempty"`
	State         ContentState `json:"state"`
}

// Provider submits mint transactions to a chain backend and reads minted
// content back. Add blocks until the chain-specific confirmation condition is
// met and always returns either a receipt or a classified error; it never
// swallows a submission that may have reached the chain.
type Provider interface {
	ContractID() uint16
	Add(ctx context.Context, assetID uuid.UUID, userKey persist.KeyPair, hash, hashAlgorithm string, price *uint64, counter int64) (persist.BlockchainTx, error)
	Get(ctx context.Context, assetID uuid.UUID, token string) (ContentInfo, error)
}

// ErrAddressMalformed is returned before anything is sent when the user's
// stored address is not valid for the target chain.
type ErrAddressMalformed struct {
	Address persist.Address
}

// ErrSecretUnavailable is returned when the contract owner's signing key could
// not be hydrated from its ciphertext.
type ErrSecretUnavailable struct {
	Err error
}

// ErrChainRejected is returned when the chain definitively refused the
// transaction before or during submission (estimation failure, rejected call).
type ErrChainRejected struct {
	Reason string
}

// ErrSubmissionUncertain is returned when the outcome of a submitted
// transaction is unknown: it may or may not have reached the chain, and the
// caller must reconcile.
type ErrSubmissionUncertain struct {
	Reason string
}

func (e ErrAddressMalformed) Error() string {
	return fmt.Sprintf("user address is malformed: %s", e.Address)
}

func (e ErrSecretUnavailable) Error() string {
	return fmt.Sprintf("contract owner key could not be hydrated: %s", e.Err)
}

func (e ErrSecretUnavailable) Unwrap() error {
	return e.Err
}

func (e ErrChainRejected) Error() string {
	return fmt.Sprintf("chain rejected transaction: %s", e.Reason)
}

func (e ErrSubmissionUncertain) Error() string {
	return fmt.Sprintf("transaction outcome uncertain: %s", e.Reason)
}

func (c ContentState) String() string {
	return string(c)
}
