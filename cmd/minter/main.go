package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/truly-video/go-truly/env"
	"github.com/truly-video/go-truly/server"
	"github.com/truly-video/go-truly/service/logger"
	"github.com/truly-video/go-truly/service/multichain"
	sentryutil "github.com/truly-video/go-truly/service/sentry"
	"github.com/truly-video/go-truly/service/task"
	"github.com/truly-video/go-truly/util"
)

func main() {
	defer sentryutil.RecoverAndRaise(nil)

	server.SetDefaults()
	server.InitSentry()
	ctx := context.Background()

	c := server.ClientInit(ctx)
	defer c.Close()

	nftService, err := server.NewNFTService(ctx, c)
	if err != nil {
		logger.For(ctx).WithError(err).Fatal("failed to initialize nft service")
	}

	maxTries := env.GetInt("MINT_MAX_TRIES")

	handler := func(ctx context.Context, message task.MintMessage) error {
		_, err := nftService.TryMint(ctx, message.AssetID, message.UserID, message.Price)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if message.Tries+1 >= maxTries {
			logger.For(ctx).WithError(err).Errorf("giving up on mint of asset %s after %d tries", message.AssetID, message.Tries+1)
			sentryutil.ReportError(ctx, err)
			return err
		}
		if pubErr := c.TaskClient.RetryMint(ctx, message); pubErr != nil {
			return pubErr
		}
		logger.For(ctx).WithError(err).Infof("re-enqueued mint of asset %s, try %d of %d", message.AssetID, message.Tries+2, maxTries)
		return nil
	}

	router := gin.Default()
	router.GET("/alive", util.HealthCheckHandler())

	logger.For(ctx).Info("Starting mint worker...")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.TaskClient.ReceiveMints(ctx, handler)
	})
	g.Go(func() error {
		return router.Run(fmt.Sprintf(":%d", env.GetInt("WORKER_PORT")))
	})
	if err := g.Wait(); err != nil {
		logger.For(ctx).WithError(err).Fatal("mint worker exited")
	}
}

// retryable reports whether a mint failure is worth re-enqueueing. Precheck
// gates are deterministic, so only chain-side failures come back.
func retryable(err error) bool {
	return errors.As(err, &multichain.ErrChainRejected{}) ||
		errors.As(err, &multichain.ErrSubmissionUncertain{}) ||
		errors.As(err, &multichain.ErrSecretUnavailable{})
}
