// Package evm implements the chain adapter for EVM-style chains: gas
// estimation, a signed legacy transaction, and a configurable confirmation
// depth before the receipt is returned.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/truly-video/go-truly/service/logger"
	"github.com/truly-video/go-truly/service/multichain"
	"github.com/truly-video/go-truly/service/persist"
	"github.com/truly-video/go-truly/service/secret"
	"github.com/truly-video/go-truly/util"
)

const (
	contractMethodMint              = "mint"
	contractMethodGetContentByToken = "getContentByToken"

	// Currency label carried on receipts from EVM chains.
	currencyLabel = "gweis"

	addTimeout          = 3 * time.Minute
	confirmPollInterval = 2 * time.Second
)

const contractABI = `[
	{"name":"mint","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"token","type":"string"},{"name":"hashFile","type":"string"},{"name":"price","type":"uint256"}],"outputs":[]},
	{"name":"getContentByToken","type":"function","stateMutability":"view","inputs":[{"name":"token","type":"string"}],"outputs":[{"name":"hashFile","type":"string"},{"name":"uri","type":"string"},{"name":"price","type":"uint256"},{"name":"state","type":"string"}]}
]`

// Provider is a chain adapter for one contract on one EVM chain. The contract
// descriptor is resolved once at construction and read-only afterwards.
type Provider struct {
	ethClient *ethclient.Client
	cypher    secret.Cypher
	contract  persist.Contract
	abi       abi.ABI
	address   common.Address
	owner     common.Address
}

// NewProvider creates a new EVM adapter bound to the given contract descriptor
func NewProvider(ethClient *ethclient.Client, cypher secret.Cypher, contract persist.Contract) (*Provider, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(contract.Address.String()) {
		return nil, fmt.Errorf("contract %d has invalid address: %s", contract.ID, contract.Address)
	}
	if !common.IsHexAddress(contract.OwnerAddress.String()) {
		return nil, fmt.Errorf("contract %d has invalid owner address: %s", contract.ID, contract.OwnerAddress)
	}
	return &Provider{
		ethClient: ethClient,
		cypher:    cypher,
		contract:  contract,
		abi:       parsed,
		address:   common.HexToAddress(contract.Address.String()),
		owner:     common.HexToAddress(contract.OwnerAddress.String()),
	}, nil
}

// ContractID returns the id of the contract this adapter mints against
func (p *Provider) ContractID() uint16 {
	return p.contract.ID
}

// Add submits a mint transaction recording the asset's hash under its id and
// waits for the configured confirmation depth. Every returned receipt carries
// an adapter-assigned creation time.
func (p *Provider) Add(ctx context.Context, assetID uuid.UUID, userKey persist.KeyPair, hash, hashAlgorithm string, price *uint64, counter int64) (persist.BlockchainTx, error) {
	defer util.Track("evm.Add", time.Now())
	ctx, cancel := context.WithTimeout(ctx, addTimeout)
	defer cancel()

	if !common.IsHexAddress(userKey.Address.String()) {
		return persist.BlockchainTx{}, multichain.ErrAddressMalformed{Address: userKey.Address}
	}
	to := common.HexToAddress(userKey.Address.String())

	prc := new(big.Int)
	if price != nil {
		prc.SetUint64(*price)
	}

	input, err := p.abi.Pack(contractMethodMint, to, assetID.String(), hash, prc)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("packing call: %s", err)}
	}

	gasLimit, err := p.ethClient.EstimateGas(ctx, ethereum.CallMsg{From: p.owner, To: &p.address, Data: input})
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("estimating gas: %s", err)}
	}

	gasPrice, err := p.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("fetching gas price: %s", err)}
	}

	ownerKey, err := p.hydrateOwnerKey(ctx)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrSecretUnavailable{Err: err}
	}

	nonce, err := p.ethClient.PendingNonceAt(ctx, p.owner)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("fetching nonce: %s", err)}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &p.address,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(p.contract.ChainID)), ownerKey)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("signing: %s", err)}
	}

	if err := p.ethClient.SendTransaction(ctx, signed); err != nil {
		// The node may have accepted the transaction before the error
		// reached us; the caller has to reconcile.
		return persist.BlockchainTx{}, multichain.ErrSubmissionUncertain{Reason: fmt.Sprintf("sending %s: %s", signed.Hash(), err)}
	}

	receipt, err := p.waitConfirmed(ctx, signed)
	if err != nil {
		return persist.BlockchainTx{}, multichain.ErrSubmissionUncertain{Reason: fmt.Sprintf("awaiting %s: %s", signed.Hash(), err)}
	}

	// Legacy transaction: the effective gas price is the price we set.
	gasUsed := new(big.Int).SetUint64(receipt.GasUsed)
	cost := new(big.Int).Mul(gasUsed, gasPrice)

	return persist.BlockchainTx{
		AssetID:           assetID,
		CreationTime:      time.Now().UTC(),
		Tx:                persist.NullString(signed.Hash().Hex()),
		BlockNumber:       persist.NullString(receipt.BlockNumber.String()),
		GasUsed:           persist.NullString(gasUsed.String()),
		EffectiveGasPrice: persist.NullString(gasPrice.String()),
		Cost:              persist.NullString(cost.String()),
		Currency:          currencyLabel,
		From:              persist.NullString(p.owner.Hex()),
		To:                persist.NullString(p.address.Hex()),
		ContractID:        p.contract.ID,
	}, nil
}

// Get reads the minted content recorded under the asset's id
func (p *Provider) Get(ctx context.Context, assetID uuid.UUID, token string) (multichain.ContentInfo, error) {
	input, err := p.abi.Pack(contractMethodGetContentByToken, assetID.String())
	if err != nil {
		return multichain.ContentInfo{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("packing call: %s", err)}
	}

	res, err := p.ethClient.CallContract(ctx, ethereum.CallMsg{To: &p.address, Data: input}, nil)
	if err != nil {
		return multichain.ContentInfo{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("calling contract: %s", err)}
	}

	out, err := p.abi.Unpack(contractMethodGetContentByToken, res)
	if err != nil || len(out) != 4 {
		return multichain.ContentInfo{}, multichain.ErrChainRejected{Reason: fmt.Sprintf("decoding content: %s", err)}
	}

	hash, _ := out[0].(string)
	uri, _ := out[1].(string)
	priceInt, _ := out[2].(*big.Int)
	state, _ := out[3].(string)

	info := multichain.ContentInfo{
		Hash:  hash,
		State: multichain.ContentStateActive,
	}
	if uri != "" {
		info.URI = &uri
	}
	if priceInt != nil && priceInt.Sign() > 0 {
		price := priceInt.Uint64()
		info.Price = &price
	}
	if state == multichain.ContentStateInactive.String() {
		info.State = multichain.ContentStateInactive
	}
	return info, nil
}

// hydrateOwnerKey decrypts the contract owner's signing key. The plaintext
// scalar lives only on this call stack.
func (p *Provider) hydrateOwnerKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	plain, err := p.cypher.Decrypt(ctx, p.contract.OwnerSecret)
	if err != nil {
		return nil, err
	}
	return crypto.HexToECDSA(strings.TrimPrefix(plain, "0x"))
}

func (p *Provider) waitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.ethClient, tx)
	if err != nil {
		return nil, err
	}

	target := new(big.Int).Add(receipt.BlockNumber, big.NewInt(int64(p.contract.Confirmations)))
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		head, err := p.ethClient.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		if new(big.Int).SetUint64(head).Cmp(target) >= 0 {
			return receipt, nil
		}
		logger.For(ctx).Debugf("tx %s at block %s, waiting for %s", tx.Hash(), receipt.BlockNumber, target)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
