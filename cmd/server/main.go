package main

import (
	"fmt"

	"github.com/truly-video/go-truly/env"
	"github.com/truly-video/go-truly/server"
	"github.com/truly-video/go-truly/service/logger"
	sentryutil "github.com/truly-video/go-truly/service/sentry"
)

func main() {
	defer sentryutil.RecoverAndRaise(nil)

	router := server.Init()
	logger.For(nil).Info("Starting server...")
	if err := router.Run(fmt.Sprintf(":%d", env.GetInt("PORT"))); err != nil {
		logger.For(nil).WithError(err).Fatal("server exited")
	}
}
