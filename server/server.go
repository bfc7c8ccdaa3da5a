// Package server wires the minting core together and exposes it over HTTP.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	migrate "github.com/truly-video/go-truly/db"
	"github.com/truly-video/go-truly/env"
	"github.com/truly-video/go-truly/service/logger"
	"github.com/truly-video/go-truly/service/multichain"
	"github.com/truly-video/go-truly/service/multichain/evm"
	"github.com/truly-video/go-truly/service/multichain/sui"
	"github.com/truly-video/go-truly/service/nft"
	"github.com/truly-video/go-truly/service/persist"
	"github.com/truly-video/go-truly/service/persist/postgres"
	"github.com/truly-video/go-truly/service/rpc"
	"github.com/truly-video/go-truly/service/secret"
	sentryutil "github.com/truly-video/go-truly/service/sentry"
	"github.com/truly-video/go-truly/service/task"
	"github.com/truly-video/go-truly/service/wallet"
)

// Clients holds the external connections shared by the HTTP server and the
// asynchronous mint worker.
type Clients struct {
	Repos        *postgres.Repositories
	DB           *sql.DB
	EthClient    *ethclient.Client
	HTTPClient   *http.Client
	PubSubClient *pubsub.Client
	SecretClient *secretmanager.Client
	TaskClient   *task.Client

	closeFunc func()
}

// Close releases the connections held by the clients.
func (c *Clients) Close() {
	c.closeFunc()
}

// ClientInit initializes every external client the minting core talks to.
func ClientInit(ctx context.Context) *Clients {
	pq := postgres.MustCreateClient()
	ethClient := rpc.NewEthClient()
	pub := task.NewPubSubClient(ctx)
	secrets := secret.NewSecretManagerClient(ctx)
	return &Clients{
		Repos:        postgres.NewRepositories(pq),
		DB:           pq,
		EthClient:    ethClient,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PubSubClient: pub,
		SecretClient: secrets,
		TaskClient:   task.NewClient(ctx, pub),
		closeFunc: func() {
			pq.Close()
			ethClient.Close()
			pub.Close()
			secrets.Close()
		},
	}
}

// Init sets up the server environment and returns a router with every handler
// attached.
func Init() *gin.Engine {
	SetDefaults()
	ctx := context.Background()

	InitSentry()
	logger.SetLoggerOptions(func(l *logrus.Logger) {
		l.SetReportCaller(true)
		if env.GetString("ENV") != "production" {
			l.SetLevel(logrus.DebugLevel)
		}
	})

	c := ClientInit(ctx)

	if env.GetBool("POSTGRES_AUTOMIGRATE") {
		if err := migrate.RunMigrations(c.DB, env.GetString("POSTGRES_MIGRATIONS_DIR")); err != nil {
			logger.For(ctx).WithError(err).Fatal("failed to run migrations")
		}
	}

	nftService, err := NewNFTService(ctx, c)
	if err != nil {
		logger.For(ctx).WithError(err).Fatal("failed to initialize nft service")
	}

	return CoreInit(c, nftService)
}

// CoreInit builds the router for the given clients. Used directly by tests.
func CoreInit(c *Clients, nftService *nft.Service) *gin.Engine {
	logger.For(nil).Info("initializing server...")

	if env.GetString("ENV") != "production" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.Default()
	return handlersInit(router, c, nftService)
}

// NewNFTService assembles the mint coordinator for the configured contract.
func NewNFTService(ctx context.Context, c *Clients) (*nft.Service, error) {
	cypher := secret.NewCypher(c.SecretClient)
	contract, err := c.Repos.ContractRepository.GetByID(ctx, uint16(env.GetInt("MINT_CONTRACT_ID")))
	if err != nil {
		return nil, err
	}

	provider, err := newChainProvider(c, cypher, contract)
	if err != nil {
		return nil, err
	}

	vault := wallet.NewVault(c.Repos.KeyPairRepository, cypher)
	lease := time.Duration(env.GetInt("MINT_LEASE_MINUTES")) * time.Minute
	return nft.NewService(provider, vault, c.Repos.AssetRepository, c.Repos.OwnerRepository, c.Repos.BlockchainTxRepository, lease), nil
}

func newChainProvider(c *Clients, cypher secret.Cypher, contract persist.Contract) (multichain.Provider, error) {
	switch contract.Blockchain {
	case persist.BlockchainEVM:
		return evm.NewProvider(c.EthClient, cypher, contract)
	case persist.BlockchainSui:
		return sui.NewProvider(c.HTTPClient, cypher, contract), nil
	default:
		return nil, fmt.Errorf("contract %d has unsupported blockchain: %s", contract.ID, contract.Blockchain)
	}
}

// SetDefaults sets the default values for the server's environment
func SetDefaults() {
	viper.SetDefault("ENV", "local")
	viper.SetDefault("PORT", 4000)
	viper.SetDefault("WORKER_PORT", 6500)
	viper.SetDefault("POSTGRES_HOST", "0.0.0.0")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "")
	viper.SetDefault("POSTGRES_DB", "postgres")
	viper.SetDefault("POSTGRES_AUTOMIGRATE", false)
	viper.SetDefault("POSTGRES_MIGRATIONS_DIR", "./db/migrations/core")
	viper.SetDefault("RPC_URL", "http://localhost:8545")
	viper.SetDefault("SUI_RPC_URL", "http://localhost:9000")
	viper.SetDefault("SENTRY_DSN", "")
	viper.SetDefault("KMS_KEY_ID", "projects/truly-local/secrets/contracts-key/versions/latest")
	viper.SetDefault("GOOGLE_PROJECT_ID", "truly-local")
	viper.SetDefault("GCLOUD_SERVICE_KEY_OVERRIDE", "")
	viper.SetDefault("PUBSUB_TOPIC_MINT_REQUESTS", "dev-mint-requests")
	viper.SetDefault("PUBSUB_SUB_MINT_REQUESTS", "dev-mint-requests-sub")
	viper.SetDefault("MINT_CONTRACT_ID", 1)
	viper.SetDefault("MINT_LEASE_MINUTES", 5)
	viper.SetDefault("MINT_MAX_TRIES", 3)

	viper.AutomaticEnv()

	env.VarsLoaded()
}

// InitSentry sets up error reporting for non-local environments.
func InitSentry() {
	if env.GetString("ENV") == "local" {
		logger.For(nil).Info("skipping sentry init")
		return
	}
	sentryutil.InitSentry()
}
