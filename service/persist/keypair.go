package persist

import (
	"context"
	"fmt"
)

// KeyPair represents a user's signing keypair. The private key is stored
// ciphered and is only ever decrypted inside the wallet vault; it must never
// appear in logs or API responses.
type KeyPair struct {
	UserID       string          `json:"userId"`
	Address      Address         `json:"address"`
	PublicKey    string          `json:"public_key"`
	PrivateKey   string          `json:"-"`
	CreationTime CreationTime    `json:"created_at"`
	LastUpdated  LastUpdatedTime `json:"last_update_time"`
}

// KeyPairRepository represents a repository for interacting with persisted
// keypairs. Rows are immutable once created: Add must reject a second write
// for the same user so that concurrent creators resolve by re-reading.
type KeyPairRepository interface {
	Add(context.Context, KeyPair) error
	GetByUserID(context.Context, string) (KeyPair, error)
}

// ErrKeyPairNotFoundByUserID is an error type for when a keypair is not found by user id
type ErrKeyPairNotFoundByUserID struct {
	UserID string
}

// ErrKeyPairAlreadyExists is an error type for when a keypair already exists for a user
type ErrKeyPairAlreadyExists struct {
	UserID string
}

func (e ErrKeyPairNotFoundByUserID) Error() string {
	return fmt.Sprintf("keypair not found for user: %s", e.UserID)
}

func (e ErrKeyPairAlreadyExists) Error() string {
	return fmt.Sprintf("keypair already exists for user: %s", e.UserID)
}
