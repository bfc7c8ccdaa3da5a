package nft

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/truly-video/go-truly/service/multichain"
	"github.com/truly-video/go-truly/service/persist"
	"github.com/truly-video/go-truly/service/wallet"
)

var testAssetID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

const (
	testUserID = "user-1"
	testHash   = "abcd"
	testAlgo   = "MD5"
)

type memAssetRepo struct {
	mu     sync.Mutex
	assets map[uuid.UUID]persist.Asset
}

func (m *memAssetRepo) GetByID(ctx context.Context, id uuid.UUID) (persist.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[id]
	if !ok {
		return persist.Asset{}, persist.ErrAssetNotFoundByID{ID: id}
	}
	return asset, nil
}

func (m *memAssetRepo) SetMintStatus(ctx context.Context, id uuid.UUID, tx persist.NullString, status persist.MintStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[id]
	if !ok {
		return persist.ErrAssetNotFoundByID{ID: id}
	}
	asset.MintStatus = status
	asset.MintedTx = tx
	asset.LastUpdated = persist.LastUpdatedTime(time.Now())
	m.assets[id] = asset
	return nil
}

func (m *memAssetRepo) put(asset persist.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset.ID] = asset
}

type memOwnerRepo struct {
	owners map[uuid.UUID]string
}

func (m *memOwnerRepo) GetByUserAssetID(ctx context.Context, assetID uuid.UUID, userID string) error {
	if m.owners[assetID] != userID {
		return persist.ErrAssetNotOwnedByUser{AssetID: assetID, UserID: userID}
	}
	return nil
}

type memTxRepo struct {
	mu  sync.Mutex
	txs []persist.BlockchainTx
}

func (m *memTxRepo) Add(ctx context.Context, tx persist.BlockchainTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memTxRepo) GetByTx(ctx context.Context, hash string) (persist.BlockchainTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches := []persist.BlockchainTx{}
	for _, tx := range m.txs {
		if tx.Tx.String() == hash {
			matches = append(matches, tx)
		}
	}
	if len(matches) == 0 {
		return persist.BlockchainTx{}, persist.ErrTxNotFoundByHash{Hash: hash}
	}
	if len(matches) > 1 {
		return persist.BlockchainTx{}, persist.ErrTxAmbiguous{Hash: hash, Matches: len(matches)}
	}
	return matches[0], nil
}

func (m *memTxRepo) GetByAssetID(ctx context.Context, assetID uuid.UUID) ([]persist.BlockchainTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []persist.BlockchainTx{}
	for _, tx := range m.txs {
		if tx.AssetID == assetID {
			res = append(res, tx)
		}
	}
	return res, nil
}

type memKeyPairRepo struct {
	mu    sync.Mutex
	pairs map[string]persist.KeyPair
}

func (m *memKeyPairRepo) Add(ctx context.Context, pair persist.KeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pairs[pair.UserID]; ok {
		return persist.ErrKeyPairAlreadyExists{UserID: pair.UserID}
	}
	m.pairs[pair.UserID] = pair
	return nil
}

func (m *memKeyPairRepo) GetByUserID(ctx context.Context, userID string) (persist.KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair, ok := m.pairs[userID]
	if !ok {
		return persist.KeyPair{}, persist.ErrKeyPairNotFoundByUserID{UserID: userID}
	}
	return pair, nil
}

type plainCypher struct{}

func (plainCypher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (plainCypher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return ciphertext[len("enc:"):], nil
}

// stubProvider replays scripted receipts and errors and records every Add
// call it receives. addErrFunc, when set, runs inside Add so tests can mutate
// state at the exact point a submission fails.
type stubProvider struct {
	mu         sync.Mutex
	addCalls   int
	addErrFunc func(ctx context.Context) error
	blockUntil chan struct{}
	content    multichain.ContentInfo
}

func (s *stubProvider) ContractID() uint16 { return 1 }

func (s *stubProvider) Add(ctx context.Context, assetID uuid.UUID, userKey persist.KeyPair, hash, hashAlgorithm string, price *uint64, counter int64) (persist.BlockchainTx, error) {
	s.mu.Lock()
	s.addCalls++
	n := s.addCalls
	s.mu.Unlock()
	if s.blockUntil != nil {
		<-s.blockUntil
	}
	if s.addErrFunc != nil {
		if err := s.addErrFunc(ctx); err != nil {
			return persist.BlockchainTx{}, err
		}
	}
	return persist.BlockchainTx{
		AssetID:           assetID,
		CreationTime:      time.Now().UTC(),
		Tx:                persist.NullString(fmt.Sprintf("0xtx%d", n)),
		BlockNumber:       "100",
		GasUsed:           "21000",
		EffectiveGasPrice: "7",
		Cost:              "147000",
		Currency:          "gweis",
		From:              persist.NullString(userKey.Address),
		To:                "0xcontract",
		ContractID:        1,
	}, nil
}

func (s *stubProvider) Get(ctx context.Context, assetID uuid.UUID, token string) (multichain.ContentInfo, error) {
	return s.content, nil
}

func (s *stubProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCalls
}

type testEnv struct {
	service  *Service
	assets   *memAssetRepo
	owners   *memOwnerRepo
	txs      *memTxRepo
	keyPairs *memKeyPairRepo
	provider *stubProvider
}

func setupTest(t *testing.T, asset persist.Asset) *testEnv {
	t.Helper()
	assets := &memAssetRepo{assets: map[uuid.UUID]persist.Asset{asset.ID: asset}}
	owners := &memOwnerRepo{owners: map[uuid.UUID]string{asset.ID: testUserID}}
	txs := &memTxRepo{}
	keyPairs := &memKeyPairRepo{pairs: map[string]persist.KeyPair{}}
	provider := &stubProvider{}
	vault := wallet.NewVault(keyPairs, plainCypher{})
	return &testEnv{
		service:  NewService(provider, vault, assets, owners, txs, DefaultMintLease),
		assets:   assets,
		owners:   owners,
		txs:      txs,
		keyPairs: keyPairs,
		provider: provider,
	}
}

func licensedAsset() persist.Asset {
	return persist.Asset{
		ID:                   testAssetID,
		Hash:                 testHash,
		HashAlgorithm:        testAlgo,
		MintStatus:           persist.MintStatusNeverMinted,
		VideoLicensingStatus: persist.VideoLicensingStatusAlreadyLicensed,
	}
}

func TestTryMintSuccess(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	price := uint64(2000)

	tx, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.NoError(err)
	a.Equal("0xtx1", tx.Tx.String())
	a.Equal("gweis", tx.Currency.String())
	a.True(tx.Successful())

	asset, err := env.assets.GetByID(context.Background(), testAssetID)
	a.NoError(err)
	a.Equal(persist.MintStatusCompletedSuccessfully, asset.MintStatus)
	a.Equal(tx.Tx, asset.MintedTx)

	records, err := env.txs.GetByAssetID(context.Background(), testAssetID)
	a.NoError(err)
	a.Len(records, 1)
	a.Equal(tx.Tx, records[0].Tx)
	a.Equal(1, env.provider.calls())
}

func TestTryMintCreatesKeypairOnce(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	price := uint64(2000)

	_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.NoError(err)

	pair, err := env.keyPairs.GetByUserID(context.Background(), testUserID)
	a.NoError(err)
	a.NotEmpty(pair.Address)
	a.NotEmpty(pair.PublicKey)
	a.Contains(pair.PrivateKey, "enc:")

	// A later mint for the same user reuses the stored keypair.
	second := licensedAsset()
	second.ID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	env.assets.put(second)
	env.owners.owners[second.ID] = testUserID

	_, err = env.service.TryMint(context.Background(), second.ID, testUserID, &price)
	a.NoError(err)
	again, err := env.keyPairs.GetByUserID(context.Background(), testUserID)
	a.NoError(err)
	a.Equal(pair.Address, again.Address)
	a.Len(env.keyPairs.pairs, 1)
}

func TestTryMintAlreadyMinted(t *testing.T) {
	a := assert.New(t)
	asset := licensedAsset()
	asset.MintStatus = persist.MintStatusCompletedSuccessfully
	asset.MintedTx = "0xexisting"
	env := setupTest(t, asset)
	price := uint64(2000)

	_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.ErrorIs(err, ErrAlreadyMinted{AssetID: testAssetID})
	a.Zero(env.provider.calls())

	after, _ := env.assets.GetByID(context.Background(), testAssetID)
	a.Equal(persist.NullString("0xexisting"), after.MintedTx)
}

func TestTryMintInProgressWithinLease(t *testing.T) {
	a := assert.New(t)
	asset := licensedAsset()
	asset.MintStatus = persist.MintStatusStarted
	asset.LastUpdated = persist.LastUpdatedTime(time.Now().Add(-time.Minute))
	env := setupTest(t, asset)
	price := uint64(2000)

	_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.ErrorIs(err, ErrMintInProgress{AssetID: testAssetID, Lease: DefaultMintLease})
	a.Zero(env.provider.calls())
}

func TestTryMintReclaimsExpiredLease(t *testing.T) {
	a := assert.New(t)
	asset := licensedAsset()
	asset.MintStatus = persist.MintStatusStarted
	asset.LastUpdated = persist.LastUpdatedTime(time.Now().Add(-6 * time.Minute))
	env := setupTest(t, asset)
	price := uint64(2000)

	tx, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.NoError(err)
	a.True(tx.Successful())
	a.Equal(1, env.provider.calls())
}

func TestTryMintNotLicensed(t *testing.T) {
	a := assert.New(t)
	asset := licensedAsset()
	asset.VideoLicensingStatus = persist.VideoLicensingStatusNotYetLicensed
	env := setupTest(t, asset)
	price := uint64(2000)

	_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.ErrorIs(err, ErrNotLicensed{AssetID: testAssetID})
	a.Zero(env.provider.calls())
}

func TestTryMintNotOwned(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	price := uint64(2000)

	_, err := env.service.TryMint(context.Background(), testAssetID, "user-2", &price)
	a.ErrorIs(err, persist.ErrAssetNotOwnedByUser{AssetID: testAssetID, UserID: "user-2"})
	a.Zero(env.provider.calls())
}

func TestTryMintChainFailureRecordsError(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	env.provider.addErrFunc = func(ctx context.Context) error {
		return multichain.ErrChainRejected{Reason: "gas estimation failed"}
	}
	price := uint64(2000)

	_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.ErrorIs(err, multichain.ErrChainRejected{Reason: "gas estimation failed"})

	asset, _ := env.assets.GetByID(context.Background(), testAssetID)
	a.Equal(persist.MintStatusError, asset.MintStatus)
	a.Empty(asset.MintedTx)

	records, _ := env.txs.GetByAssetID(context.Background(), testAssetID)
	a.Len(records, 1)
	a.False(records[0].Successful())
	a.Contains(records[0].TxError.String(), "gas estimation failed")
	a.Equal(uint16(1), records[0].ContractID)

	// A retry after the failure is allowed and leaves a second record.
	env.provider.addErrFunc = nil
	tx, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.NoError(err)
	a.True(tx.Successful())
	records, _ = env.txs.GetByAssetID(context.Background(), testAssetID)
	a.Len(records, 2)
}

func TestTryMintUncertainFailureReturnsConcurrentWinner(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	price := uint64(2000)

	winner := persist.BlockchainTx{
		AssetID:      testAssetID,
		CreationTime: time.Now().UTC(),
		Tx:           "0xwinner",
		Currency:     "gweis",
		ContractID:   1,
	}
	a.NoError(env.txs.Add(context.Background(), winner))

	// The adapter reports an uncertain submission while, inside the same
	// window, a racing attempt completes the mint. The re-read must surface
	// the winning receipt instead of writing a failure record.
	env.provider.addErrFunc = func(ctx context.Context) error {
		env.assets.SetMintStatus(ctx, testAssetID, "0xwinner", persist.MintStatusCompletedSuccessfully)
		return multichain.ErrSubmissionUncertain{Reason: "timed out waiting for receipt"}
	}

	tx, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.NoError(err)
	a.Equal(persist.NullString("0xwinner"), tx.Tx)

	records, _ := env.txs.GetByAssetID(context.Background(), testAssetID)
	a.Len(records, 1)
}

func TestTryMintConcurrentCallersAreGated(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	release := make(chan struct{})
	env.provider.blockUntil = release
	price := uint64(2000)

	firstResult := make(chan error, 1)
	go func() {
		_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
		firstResult <- err
	}()

	// Wait until the first caller is inside the chain submission, holding
	// the lease.
	a.Eventually(func() bool { return env.provider.calls() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 7; i++ {
		_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
		a.ErrorIs(err, ErrMintInProgress{AssetID: testAssetID, Lease: DefaultMintLease})
	}

	close(release)
	a.NoError(<-firstResult)
	a.Equal(1, env.provider.calls())

	records, _ := env.txs.GetByAssetID(context.Background(), testAssetID)
	a.Len(records, 1)

	// Once the winner has completed, late callers get the terminal gate.
	_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.ErrorIs(err, ErrAlreadyMinted{AssetID: testAssetID})
}

func TestScheduleMarksAssetScheduled(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())

	a.NoError(env.service.Schedule(context.Background(), testAssetID, testUserID))

	asset, err := env.assets.GetByID(context.Background(), testAssetID)
	a.NoError(err)
	a.Equal(persist.MintStatusScheduled, asset.MintStatus)

	// A scheduled asset is still mintable when the message arrives.
	price := uint64(2000)
	tx, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.NoError(err)
	a.True(tx.Successful())
}

func TestScheduleCannotUnterminateMintedAsset(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	price := uint64(2000)

	first, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.NoError(err)

	// Re-scheduling a minted asset must be refused with the terminal state
	// and minted tx left untouched.
	err = env.service.Schedule(context.Background(), testAssetID, testUserID)
	a.ErrorIs(err, ErrAlreadyMinted{AssetID: testAssetID})

	asset, err := env.assets.GetByID(context.Background(), testAssetID)
	a.NoError(err)
	a.Equal(persist.MintStatusCompletedSuccessfully, asset.MintStatus)
	a.Equal(first.Tx, asset.MintedTx)

	// A redelivered mint request after the refused schedule stays gated.
	_, err = env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.ErrorIs(err, ErrAlreadyMinted{AssetID: testAssetID})
	a.Equal(1, env.provider.calls())

	records, _ := env.txs.GetByAssetID(context.Background(), testAssetID)
	a.Len(records, 1)
	a.True(records[0].Successful())
}

func TestScheduleRunsAllGates(t *testing.T) {
	a := assert.New(t)

	leased := licensedAsset()
	leased.MintStatus = persist.MintStatusStarted
	leased.LastUpdated = persist.LastUpdatedTime(time.Now())
	env := setupTest(t, leased)
	err := env.service.Schedule(context.Background(), testAssetID, testUserID)
	a.ErrorIs(err, ErrMintInProgress{AssetID: testAssetID, Lease: DefaultMintLease})

	env = setupTest(t, licensedAsset())
	err = env.service.Schedule(context.Background(), testAssetID, "user-2")
	a.ErrorIs(err, persist.ErrAssetNotOwnedByUser{AssetID: testAssetID, UserID: "user-2"})
	asset, _ := env.assets.GetByID(context.Background(), testAssetID)
	a.Equal(persist.MintStatusNeverMinted, asset.MintStatus)
}

func TestTxLogRoundTripFullRecord(t *testing.T) {
	a := assert.New(t)
	txs := &memTxRepo{}

	record := persist.BlockchainTx{
		AssetID:           testAssetID,
		CreationTime:      time.Now().UTC(),
		Tx:                "0xroundtrip",
		BlockNumber:       "100",
		GasUsed:           "21000",
		EffectiveGasPrice: "7",
		Cost:              "147000",
		Currency:          "gweis",
		From:              "0xowner",
		To:                "0xcontract",
		ContractID:        1,
	}
	a.NoError(txs.Add(context.Background(), record))

	got, err := txs.GetByTx(context.Background(), "0xroundtrip")
	a.NoError(err)
	a.Equal(record, got)

	all, err := txs.GetByAssetID(context.Background(), testAssetID)
	a.NoError(err)
	a.Equal([]persist.BlockchainTx{record}, all)

	_, err = txs.GetByTx(context.Background(), "0xmissing")
	a.ErrorIs(err, persist.ErrTxNotFoundByHash{Hash: "0xmissing"})
}

func TestTxLogAmbiguousHash(t *testing.T) {
	a := assert.New(t)
	txs := &memTxRepo{}

	for i := 0; i < 2; i++ {
		a.NoError(txs.Add(context.Background(), persist.BlockchainTx{
			AssetID:      testAssetID,
			CreationTime: time.Now().UTC().Add(time.Duration(i) * time.Second),
			Tx:           "0xdup",
			ContractID:   1,
		}))
	}

	_, err := txs.GetByTx(context.Background(), "0xdup")
	a.ErrorIs(err, persist.ErrTxAmbiguous{Hash: "0xdup", Matches: 2})
}

func TestTryMintReconcilePropagatesAmbiguousWinner(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	price := uint64(2000)

	// Two log records already claim the winning hash; resolving the winner
	// during reconciliation must surface the ambiguity instead of guessing.
	for i := 0; i < 2; i++ {
		a.NoError(env.txs.Add(context.Background(), persist.BlockchainTx{
			AssetID:      testAssetID,
			CreationTime: time.Now().UTC().Add(time.Duration(i) * time.Second),
			Tx:           "0xdup",
			ContractID:   1,
		}))
	}
	env.provider.addErrFunc = func(ctx context.Context) error {
		env.assets.SetMintStatus(ctx, testAssetID, "0xdup", persist.MintStatusCompletedSuccessfully)
		return multichain.ErrSubmissionUncertain{Reason: "timed out waiting for receipt"}
	}

	_, err := env.service.TryMint(context.Background(), testAssetID, testUserID, &price)
	a.ErrorIs(err, persist.ErrTxAmbiguous{Hash: "0xdup", Matches: 2})
}

func TestGetReturnsFirstSuccessfulMint(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())
	price := uint64(2000)
	env.provider.content = multichain.ContentInfo{
		Hash:          testHash,
		HashAlgorithm: testAlgo,
		Price:         &price,
		State:         multichain.ContentStateActive,
	}

	// A failed attempt followed by a successful one.
	a.NoError(env.txs.Add(context.Background(), persist.BlockchainTx{
		AssetID:      testAssetID,
		CreationTime: time.Now().UTC().Add(-time.Minute),
		ContractID:   1,
		TxError:      "nonce too low",
	}))
	a.NoError(env.txs.Add(context.Background(), persist.BlockchainTx{
		AssetID:      testAssetID,
		CreationTime: time.Now().UTC(),
		Tx:           "0xtx1",
		ContractID:   1,
	}))

	info, err := env.service.Get(context.Background(), testAssetID)
	a.NoError(err)
	a.Equal(testHash, info.Hash)
	a.Equal(testAlgo, info.HashAlgorithm)
	a.Equal(uint64(2000), *info.Price)
	a.Equal(multichain.ContentStateActive, info.State)
}

func TestGetNeverSucceeded(t *testing.T) {
	a := assert.New(t)
	env := setupTest(t, licensedAsset())

	_, err := env.service.Get(context.Background(), testAssetID)
	a.ErrorIs(err, ErrNeverSucceeded{AssetID: testAssetID})

	a.NoError(env.txs.Add(context.Background(), persist.BlockchainTx{
		AssetID:      testAssetID,
		CreationTime: time.Now().UTC(),
		ContractID:   1,
		TxError:      "insufficient funds",
	}))

	_, err = env.service.Get(context.Background(), testAssetID)
	a.ErrorIs(err, ErrNeverSucceeded{AssetID: testAssetID})
}
