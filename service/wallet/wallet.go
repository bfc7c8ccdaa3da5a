// Package wallet is the keypair vault: one signing keypair per user, created
// on first use and immutable afterwards.
package wallet

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/truly-video/go-truly/service/persist"
	"github.com/truly-video/go-truly/service/secret"
)

// Vault looks up and creates per-user signing keypairs. Private scalars are
// stored ciphered and only ever decrypted inside SignHash.
type Vault struct {
	repo   persist.KeyPairRepository
	cypher secret.Cypher
}

// NewVault creates a new keypair vault over the given store and cypher
func NewVault(repo persist.KeyPairRepository, cypher secret.Cypher) *Vault {
	return &Vault{repo: repo, cypher: cypher}
}

// GetOrCreate returns the user's keypair, generating and persisting a fresh
// secp256k1 keypair when none exists. Creation is not single-flight across
// processes: concurrent creators may each generate material, the store accepts
// exactly one insert, and losers discard theirs and re-read the winner.
func (v *Vault) GetOrCreate(ctx context.Context, userID string) (persist.KeyPair, error) {
	keypair, err := v.repo.GetByUserID(ctx, userID)
	if err == nil {
		return keypair, nil
	}
	notFound := persist.ErrKeyPairNotFoundByUserID{}
	if !errors.As(err, &notFound) {
		return persist.KeyPair{}, err
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return persist.KeyPair{}, err
	}

	// Address is the last 20 bytes of the Keccak-256 of the uncompressed
	// public key, which is what PubkeyToAddress computes.
	address := crypto.PubkeyToAddress(priv.PublicKey)
	publicKey := hexutil.Encode(crypto.FromECDSAPub(&priv.PublicKey))

	ciphered, err := v.cypher.Encrypt(ctx, hex.EncodeToString(crypto.FromECDSA(priv)))
	if err != nil {
		return persist.KeyPair{}, err
	}

	keypair = persist.KeyPair{
		UserID:     userID,
		Address:    persist.Address(address.Hex()),
		PublicKey:  publicKey,
		PrivateKey: ciphered,
	}

	if err := v.repo.Add(ctx, keypair); err != nil {
		exists := persist.ErrKeyPairAlreadyExists{}
		if errors.As(err, &exists) {
			return v.repo.GetByUserID(ctx, userID)
		}
		return persist.KeyPair{}, err
	}

	return keypair, nil
}

// SignHash signs a 32-byte digest with the user's private key. The decrypted
// scalar never leaves this call.
func (v *Vault) SignHash(ctx context.Context, userID string, digest []byte) ([]byte, error) {
	keypair, err := v.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	plain, err := v.cypher.Decrypt(ctx, keypair.PrivateKey)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.HexToECDSA(plain)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest, priv)
}
