// Package sui implements the chain adapter for the Sui JSON-RPC dialect: the
// move call is built and estimated server-side over BCS transaction bytes,
// then executed with WaitForLocalExecution so the effects are final when the
// call returns.
package sui

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/truly-video/go-truly/env"
	"github.com/truly-video/go-truly/service/multichain"
	"github.com/truly-video/go-truly/service/persist"
	"github.com/truly-video/go-truly/service/secret"
	"github.com/truly-video/go-truly/util"
	"golang.org/x/crypto/blake2b"
)

func init() {
	env.RegisterValidation("SUI_RPC_URL", "required")
}

const (
	contractModule        = "hasher"
	contractMethodMinting = "add_hash"

	// Currency label carried on receipts from Sui; amounts are in mist.
	currencyLabel = "mist"

	defaultGasBudget = 10_000_000
	addTimeout       = 2 * time.Minute
)

// ed25519Flag prefixes serialized Sui signatures produced with an ed25519 key.
const ed25519Flag = 0x00

// Provider is a chain adapter for one package on a Sui network
type Provider struct {
	url        string
	httpClient *http.Client
	cypher     secret.Cypher
	contract   persist.Contract
	reqID      uint64
}

// NewProvider creates a new Sui adapter bound to the given contract descriptor
func NewProvider(httpClient *http.Client, cypher secret.Cypher, contract persist.Contract) *Provider {
	return &Provider{
		url:        env.GetString("SUI_RPC_URL"),
		httpClient: httpClient,
		cypher:     cypher,
		contract:   contract,
	}
}

// ContractID returns the id of the contract this adapter mints against
func (p *Provider) ContractID() uint16 {
	return p.contract.ID
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (p *Provider) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      atomic.AddUint64(&p.reqID, 1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return *envelope.Error
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

type txEffects struct {
	Status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"status"`
	ExecutedEpoch string `json:"executedEpoch"`
	GasUsed       struct {
		ComputationCost string `json:"computationCost"`
		StorageCost     string `json:"storageCost"`
		StorageRebate   string `json:"storageRebate"`
	} `json:"gasUsed"`
	Created []struct {
		Reference struct {
			ObjectID string `json:"objectId"`
		} `json:"reference"`
	} `json:"created"`
}

// Add builds, estimates and executes the add_hash move call. Estimation runs
// before execution so a transaction the chain would refuse never spends gas.
func (p *Provider) Add(ctx context.Context, assetID uuid.UUID, userKey persist.KeyPair, hash, hashAlgorithm string, price *uint64, counter int64) (persist.BlockchainTx, error) {
	defer util.Track("sui.Add", time.Now())
	ctx, cancel := context.WithTimeout(ctx, addTimeout)
	defer cancel()

	var build struct {
		TxBytes string `json:"txBytes"`
	}
	err := p.call(ctx, "unsafe_moveCall", []any{
		p.contract.OwnerAddress.String(),
		p.contract.Address.String(),
		contractModule,
		contractMethodMinting,
		[]any{},
		[]any{hash, hashAlgorithm, assetID.String()},
		p.contract.OwnerCash.String(),
		strconv.Itoa(defaultGasBudget),
	}, &build)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("building move call: %s", err)}
	}

	var dryRun struct {
		Effects txEffects `json:"effects"`
	}
	if err := p.call(ctx, "sui_dryRunTransactionBlock", []any{build.TxBytes}, &dryRun); err != nil {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("estimating: %s", err)}
	}
	if dryRun.Effects.Status.Status != "success" {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("estimation refused: %s", dryRun.Effects.Status.Error)}
	}

	signature, err := p.signTxBytes(ctx, build.TxBytes)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrSecretUnavailable{Err: err}
	}

	var exec struct {
		Digest                  string    `json:"digest"`
		ConfirmedLocalExecution *bool     `json:"confirmedLocalExecution"`
		Effects                 txEffects `json:"effects"`
	}
	err = p.call(ctx, "sui_executeTransactionBlock", []any{
		build.TxBytes,
		[]string{signature},
		map[string]bool{"showEffects": true, "showObjectChanges": true},
		"WaitForLocalExecution",
	}, &exec)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrSubmissionUncertain{Reason: fmt.Sprintf("executing: %s", err)}
	}
	if exec.ConfirmedLocalExecution != nil && !*exec.ConfirmedLocalExecution {
		return persist.BlockchainTx{}, multichain.ErrSubmissionUncertain{Reason: "local execution not confirmed"}
	}
	if exec.Effects.Status.Status != "success" {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("execution failed: %s", exec.Effects.Status.Error)}
	}

	token := exec.Digest
	if len(exec.Effects.Created) > 0 {
		token = exec.Effects.Created[0].Reference.ObjectID
	}

	return persist.BlockchainTx{
		AssetID:      assetID,
		CreationTime: time.Now().UTC(),
		Tx:           persist.NullString(token),
		BlockNumber:  persist.NullString(exec.Effects.ExecutedEpoch),
		GasUsed:      persist.NullString(exec.Effects.GasUsed.ComputationCost),
		Cost:         persist.NullString(totalGasCost(exec.Effects)),
		Currency:     currencyLabel,
		From:         persist.NullString(p.contract.OwnerAddress),
		ContractID:   p.contract.ID,
	}, nil
}

// Get reads the content object created by a successful add_hash call
func (p *Provider) Get(ctx context.Context, assetID uuid.UUID, token string) (multichain.ContentInfo, error) {
	var object struct {
		Data struct {
			Content struct {
				Fields struct {
					Hash      string `json:"hash"`
					Algorithm string `json:"algorithm"`
					TrulyID   string `json:"truly_id"`
				} `json:"fields"`
			} `json:"content"`
		} `json:"data"`
	}
	err := p.call(ctx, "sui_getObject", []any{token, map[string]bool{"showContent": true}}, &object)
	if err != nil {
		return multichain.ContentInfo{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("reading object %s: %s", token, err)}
	}

	return multichain.ContentInfo{
		Hash:          object.Data.Content.Fields.Hash,
		HashAlgorithm: object.Data.Content.Fields.Algorithm,
		State:         multichain.ContentStateActive,
	}, nil
}

// signTxBytes signs the BCS transaction bytes under the sui transaction
// intent with the contract owner's ed25519 key.
func (p *Provider) signTxBytes(ctx context.Context, txBytesB64 string) (string, error) {
	plain, err := p.cypher.Decrypt(ctx, p.contract.OwnerSecret)
	if err != nil {
		return "", err
	}
	seed, err := base64.StdEncoding.DecodeString(plain)
	if err != nil {
		return "", fmt.Errorf("owner secret is not a base64 seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("owner secret has wrong length: %d", len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)

	txBytes, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return "", err
	}

	// Intent scope TransactionData, version 0, app id Sui.
	message := append([]byte{0, 0, 0}, txBytes...)
	digest := blake2b.Sum256(message)
	sig := ed25519.Sign(priv, digest[:])

	serialized := make([]byte, 0, 1+len(sig)+ed25519.PublicKeySize)
	serialized = append(serialized, ed25519Flag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, priv.Public().(ed25519.PublicKey)...)
	return base64.StdEncoding.EncodeToString(serialized), nil
}

func totalGasCost(effects txEffects) string {
	computation, _ := strconv.ParseInt(effects.GasUsed.ComputationCost, 10, 64)
	storage, _ := strconv.ParseInt(effects.GasUsed.StorageCost, 10, 64)
	rebate, _ := strconv.ParseInt(effects.GasUsed.StorageRebate, 10, 64)
	return strconv.FormatInt(computation+storage-rebate, 10)
}
