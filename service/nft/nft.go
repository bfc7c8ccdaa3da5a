// Package nft implements the mint coordinator: the component that guarantees
// at most one successful on-chain write per asset across retries and
// concurrent callers, with a complete audit trail of every attempt.
//
// The coordinator is optimistic-plus-reconcile rather than lock-based. The
// authoritative "did it mint" signal lives on chain and is mirrored into the
// asset record, so a crashed or racing caller cannot create a second
// successful mint without the post-failure re-read observing the winner.
package nft

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/truly-video/go-truly/service/logger"
	"github.com/truly-video/go-truly/service/multichain"
	"github.com/truly-video/go-truly/service/persist"
	"github.com/truly-video/go-truly/service/wallet"
)

// DefaultMintLease is how long a Started status blocks new attempts before the
// prior attempt is considered abandoned. Long enough to exceed typical
// confirmation times.
const DefaultMintLease = 5 * time.Minute

// Service coordinates the asset registry, transaction log, keypair vault and
// chain adapter to implement the minting protocol.
type Service struct {
	chain     multichain.Provider
	vault     *wallet.Vault
	assetRepo persist.AssetRepository
	ownerRepo persist.OwnerRepository
	txRepo    persist.BlockchainTxRepository
	mintLease time.Duration
}

// NewService creates a new mint coordinator. A non-positive lease falls back
// to DefaultMintLease.
func NewService(chain multichain.Provider, vault *wallet.Vault, assetRepo persist.AssetRepository, ownerRepo persist.OwnerRepository, txRepo persist.BlockchainTxRepository, mintLease time.Duration) *Service {
	if mintLease <= 0 {
		mintLease = DefaultMintLease
	}
	return &Service{
		chain:     chain,
		vault:     vault,
		assetRepo: assetRepo,
		ownerRepo: ownerRepo,
		txRepo:    txRepo,
		mintLease: mintLease,
	}
}

// ErrAlreadyMinted is an error type for when an asset has already been minted successfully
type ErrAlreadyMinted struct {
	AssetID uuid.UUID
}

// ErrMintInProgress is an error type for when another mint attempt holds the lease on the asset
type ErrMintInProgress struct {
	AssetID uuid.UUID
	Lease   time.Duration
}

// ErrNotLicensed is an error type for when an asset's video has not been licensed yet
type ErrNotLicensed struct {
	AssetID uuid.UUID
}

// ErrNeverSucceeded is an error type for when no successful mint exists for an asset
type ErrNeverSucceeded struct {
	AssetID uuid.UUID
}

func (e ErrAlreadyMinted) Error() string {
	return fmt.Sprintf("asset %s has already been minted", e.AssetID)
}

func (e ErrMintInProgress) Error() string {
	return fmt.Sprintf("minting of asset %s was initiated less than %s ago", e.AssetID, e.Lease)
}

func (e ErrNotLicensed) Error() string {
	return fmt.Sprintf("asset %s video has not been licensed yet", e.AssetID)
}

func (e ErrNeverSucceeded) Error() string {
	return fmt.Sprintf("asset %s has not been successfully minted before", e.AssetID)
}

// prechecksBeforeMinting runs the phase-1 gates in order. Errors here are
// returned with no state change.
func (s *Service) prechecksBeforeMinting(ctx context.Context, assetID uuid.UUID, userID string) (persist.Asset, error) {
	asset, err := s.assetRepo.GetByID(ctx, assetID)
	if err != nil {
		return persist.Asset{}, err
	}

	if asset.MintStatus == persist.MintStatusCompletedSuccessfully {
		return persist.Asset{}, ErrAlreadyMinted{AssetID: assetID}
	}

	// A Started status within the lease window belongs to a live attempt;
	// outside the window the attempt is considered abandoned and may be
	// superseded.
	if asset.MintStatus == persist.MintStatusStarted && time.Since(asset.LastUpdated.Time()) < s.mintLease {
		return persist.Asset{}, ErrMintInProgress{AssetID: assetID, Lease: s.mintLease}
	}

	if asset.VideoLicensingStatus != persist.VideoLicensingStatusAlreadyLicensed {
		return persist.Asset{}, ErrNotLicensed{AssetID: assetID}
	}

	if err := s.ownerRepo.GetByUserAssetID(ctx, assetID, userID); err != nil {
		return persist.Asset{}, err
	}

	return asset, nil
}

// Schedule validates that the asset is currently mintable and marks it
// Scheduled so the enqueued request is visible in the registry. The phase-1
// gates apply here exactly as in TryMint: a completed asset keeps its terminal
// status and minted tx, and a leased attempt is not superseded.
func (s *Service) Schedule(ctx context.Context, assetID uuid.UUID, userID string) error {
	if _, err := s.prechecksBeforeMinting(ctx, assetID, userID); err != nil {
		return err
	}
	return s.assetRepo.SetMintStatus(ctx, assetID, "", persist.MintStatusScheduled)
}

// TryMint anchors the asset's hash on chain. Exactly one concurrent caller
// can succeed; a losing caller either returns the winner's receipt or an
// error, and every chain attempt leaves one transaction-log record.
func (s *Service) TryMint(ctx context.Context, assetID uuid.UUID, userID string, price *uint64) (persist.BlockchainTx, error) {
	asset, err := s.prechecksBeforeMinting(ctx, assetID, userID)
	if err != nil {
		return persist.BlockchainTx{}, err
	}

	userKey, err := s.vault.GetOrCreate(ctx, userID)
	if err != nil {
		return persist.BlockchainTx{}, err
	}

	// Started must be visible before the submission so a concurrent caller
	// within the lease is gated out.
	if err := s.assetRepo.SetMintStatus(ctx, assetID, "", persist.MintStatusStarted); err != nil {
		return persist.BlockchainTx{}, err
	}

	tx, err := s.chain.Add(ctx, assetID, userKey, asset.Hash.String(), asset.HashAlgorithm.String(), price, asset.Counter)
	if err != nil {
		return s.reconcileFailedMint(ctx, assetID, err)
	}

	// The asset record is the source of truth for reconciliation, so it is
	// updated before the transaction log.
	if err := s.assetRepo.SetMintStatus(ctx, assetID, tx.Tx, persist.MintStatusCompletedSuccessfully); err != nil {
		return persist.BlockchainTx{}, err
	}
	if err := s.txRepo.Add(ctx, tx); err != nil {
		return persist.BlockchainTx{}, err
	}

	return tx, nil
}

// reconcileFailedMint handles every adapter failure, including the uncertain
// ones. A re-read that observes CompletedSuccessfully means a racing caller
// won (or our own submission landed despite the error): the winning receipt is
// returned and nothing new is written. Otherwise the asset moves to Error and
// the failure is appended to the audit log.
func (s *Service) reconcileFailedMint(ctx context.Context, assetID uuid.UUID, mintErr error) (persist.BlockchainTx, error) {
	asset, err := s.assetRepo.GetByID(ctx, assetID)
	if err != nil {
		return persist.BlockchainTx{}, err
	}

	if asset.MintStatus == persist.MintStatusCompletedSuccessfully {
		winner, err := s.txRepo.GetByTx(ctx, asset.MintedTx.String())
		if err != nil {
			return persist.BlockchainTx{}, err
		}
		logger.For(ctx).Infof("asset %s was minted concurrently as %s, returning winning receipt", assetID, asset.MintedTx)
		return winner, nil
	}

	if err := s.assetRepo.SetMintStatus(ctx, assetID, "", persist.MintStatusError); err != nil {
		logger.For(ctx).WithError(err).Errorf("failed to record error status for asset %s", assetID)
		return persist.BlockchainTx{}, err
	}

	failure := persist.BlockchainTx{
		AssetID:      assetID,
		CreationTime: time.Now().UTC(),
		ContractID:   s.chain.ContractID(),
		TxError:      persist.NullString(mintErr.Error()),
	}
	if err := s.txRepo.Add(ctx, failure); err != nil {
		logger.For(ctx).WithError(err).Errorf("failed to append failure record for asset %s", assetID)
		return persist.BlockchainTx{}, err
	}

	return persist.BlockchainTx{}, mintErr
}

// Get returns the on-chain content recorded by the asset's first successful
// mint. It never mutates state.
func (s *Service) Get(ctx context.Context, assetID uuid.UUID) (multichain.ContentInfo, error) {
	txs, err := s.txRepo.GetByAssetID(ctx, assetID)
	if err != nil {
		return multichain.ContentInfo{}, err
	}

	for _, tx := range txs {
		if tx.Successful() {
			return s.chain.Get(ctx, assetID, tx.Tx.String())
		}
	}

	return multichain.ContentInfo{}, ErrNeverSucceeded{AssetID: assetID}
}
