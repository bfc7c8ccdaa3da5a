package wallet

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/truly-video/go-truly/service/persist"
)

// memKeyPairRepo is first-insert-wins, matching the unique constraint the
// postgres repository enforces.
type memKeyPairRepo struct {
	mu       sync.Mutex
	keypairs map[string]persist.KeyPair
	adds     int
}

func newMemKeyPairRepo() *memKeyPairRepo {
	return &memKeyPairRepo{keypairs: map[string]persist.KeyPair{}}
}

func (r *memKeyPairRepo) Add(pCtx context.Context, pKeyPair persist.KeyPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds++
	if _, ok := r.keypairs[pKeyPair.UserID]; ok {
		return persist.ErrKeyPairAlreadyExists{UserID: pKeyPair.UserID}
	}
	r.keypairs[pKeyPair.UserID] = pKeyPair
	return nil
}

func (r *memKeyPairRepo) GetByUserID(pCtx context.Context, pUserID string) (persist.KeyPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keypair, ok := r.keypairs[pUserID]
	if !ok {
		return persist.KeyPair{}, persist.ErrKeyPairNotFoundByUserID{UserID: pUserID}
	}
	return keypair, nil
}

// plainCypher prefixes instead of ciphering so tests can assert the stored
// form differs from the plaintext scalar.
type plainCypher struct{}

func (plainCypher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (plainCypher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

func TestGetOrCreateGeneratesOnce(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	repo := newMemKeyPairRepo()
	vault := NewVault(repo, plainCypher{})

	first, err := vault.GetOrCreate(ctx, "user-1")
	a.NoError(err)
	a.True(common.IsHexAddress(first.Address.String()))
	a.True(strings.HasPrefix(first.PrivateKey, "enc:"))

	second, err := vault.GetOrCreate(ctx, "user-1")
	a.NoError(err)
	a.Equal(first.Address, second.Address)
	a.Equal(first.PublicKey, second.PublicKey)
	a.Equal(1, repo.adds)
}

func TestGetOrCreatePerUser(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	vault := NewVault(newMemKeyPairRepo(), plainCypher{})

	one, err := vault.GetOrCreate(ctx, "user-1")
	a.NoError(err)
	two, err := vault.GetOrCreate(ctx, "user-2")
	a.NoError(err)
	a.NotEqual(one.Address, two.Address)
}

func TestGetOrCreateLoserReadsWinner(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	repo := newMemKeyPairRepo()
	vault := NewVault(repo, plainCypher{})

	var wg sync.WaitGroup
	results := make([]persist.KeyPair, 8)
	for i := 0; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keypair, err := vault.GetOrCreate(ctx, "user-1")
			a.NoError(err)
			results[i] = keypair
		}(i)
	}
	wg.Wait()

	winner, err := repo.GetByUserID(ctx, "user-1")
	a.NoError(err)
	for _, keypair := range results {
		a.Equal(winner.Address, keypair.Address)
	}
}

func TestSignHashRecoversAddress(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	vault := NewVault(newMemKeyPairRepo(), plainCypher{})

	keypair, err := vault.GetOrCreate(ctx, "user-1")
	a.NoError(err)

	digest := crypto.Keccak256([]byte("truly"))
	sig, err := vault.SignHash(ctx, "user-1", digest)
	a.NoError(err)
	a.Len(sig, 65)

	pub, err := crypto.SigToPub(digest, sig)
	a.NoError(err)
	a.Equal(keypair.Address.String(), crypto.PubkeyToAddress(*pub).Hex())
}

func TestSignHashUnknownUser(t *testing.T) {
	a := assert.New(t)

	vault := NewVault(newMemKeyPairRepo(), plainCypher{})

	_, err := vault.SignHash(context.Background(), "nobody", []byte("digest"))
	notFound := persist.ErrKeyPairNotFoundByUserID{}
	a.ErrorAs(err, &notFound)
	a.Equal("nobody", notFound.UserID)
}
