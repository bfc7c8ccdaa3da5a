package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/truly-video/go-truly/service/logger"
	"github.com/truly-video/go-truly/service/multichain"
	"github.com/truly-video/go-truly/service/nft"
	"github.com/truly-video/go-truly/service/persist"
	"github.com/truly-video/go-truly/service/task"
	"github.com/truly-video/go-truly/util"
)

const (
	NFTsGroupPath  = "/nfts"
	MintPath       = NFTsGroupPath + "/mint"
	MintSyncPath   = NFTsGroupPath + "/mint/sync"
	GetContentPath = NFTsGroupPath + "/:asset_id"
	GetMintTxsPath = NFTsGroupPath + "/:asset_id/txs"
)

func handlersInit(router *gin.Engine, c *Clients, nftService *nft.Service) *gin.Engine {
	router.Use(requestID())
	router.GET("/alive", util.HealthCheckHandler())

	router.POST(MintPath, scheduleMint(nftService, c.TaskClient))
	router.POST(MintSyncPath, mintSync(nftService))
	router.GET(GetContentPath, getContent(nftService))
	router.GET(GetMintTxsPath, getMintTxs(c.Repos.BlockchainTxRepository))

	return router
}

// requestID tags every request's logs with a unique id so concurrent mint
// attempts can be told apart.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.NewContextWithFields(c.Request.Context(), logrus.Fields{"request_id": persist.GenerateID()})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// MintInput is the request body for both the asynchronous and synchronous
// mint endpoints.
type MintInput struct {
	AssetID uuid.UUID `json:"asset_id" binding:"required"`
	UserID  string    `json:"user_id" binding:"required"`
	Price   *uint64   `json:"price,omitempty"`
}

// scheduleMint marks the asset as scheduled and hands the request to the
// asynchronous worker. The coordinator's gates run first so a completed or
// in-progress asset can never be pushed back into a mintable state from here.
func scheduleMint(nftService *nft.Service, taskClient *task.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := MintInput{}
		if err := c.ShouldBindJSON(&input); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		if err := nftService.Schedule(c, input.AssetID, input.UserID); err != nil {
			util.ErrResponse(c, mintErrStatus(err), err)
			return
		}

		message := task.MintMessage{AssetID: input.AssetID, UserID: input.UserID, Price: input.Price}
		if err := taskClient.CreateTaskForMint(c, message); err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}

		c.JSON(http.StatusAccepted, util.SuccessResponse{Success: true})
	}
}

// mintSync runs the full mint protocol inline and returns the receipt.
func mintSync(nftService *nft.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := MintInput{}
		if err := c.ShouldBindJSON(&input); err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		tx, err := nftService.TryMint(c, input.AssetID, input.UserID, input.Price)
		if err != nil {
			util.ErrResponse(c, mintErrStatus(err), err)
			return
		}

		c.JSON(http.StatusOK, tx)
	}
}

// getContent returns the on-chain content anchored by the asset's successful
// mint.
func getContent(nftService *nft.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID, err := uuid.Parse(c.Param("asset_id"))
		if err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		info, err := nftService.Get(c, assetID)
		if err != nil {
			util.ErrResponse(c, mintErrStatus(err), err)
			return
		}

		c.JSON(http.StatusOK, info)
	}
}

// getMintTxs returns the asset's full mint attempt history, oldest first.
func getMintTxs(txRepo persist.BlockchainTxRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID, err := uuid.Parse(c.Param("asset_id"))
		if err != nil {
			util.ErrResponse(c, http.StatusBadRequest, err)
			return
		}

		txs, err := txRepo.GetByAssetID(c, assetID)
		if err != nil {
			util.ErrResponse(c, http.StatusInternalServerError, err)
			return
		}

		c.JSON(http.StatusOK, txs)
	}
}

func mintErrStatus(err error) int {
	switch {
	case errors.As(err, &persist.ErrAssetNotFoundByID{}):
		return http.StatusNotFound
	case errors.As(err, &nft.ErrNeverSucceeded{}):
		return http.StatusNotFound
	case errors.As(err, &persist.ErrAssetNotOwnedByUser{}):
		return http.StatusForbidden
	case errors.As(err, &nft.ErrNotLicensed{}):
		return http.StatusForbidden
	case errors.As(err, &nft.ErrAlreadyMinted{}):
		return http.StatusConflict
	case errors.As(err, &nft.ErrMintInProgress{}):
		return http.StatusConflict
	case errors.As(err, &multichain.ErrAddressMalformed{}):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
