package main

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"github.com/gigdesk/credits/cmd/httpserver"
	"github.com/gigdesk/credits/internal/middleware"
	"github.com/gigdesk/credits/pkg/configpkg"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	conn, err := sql.Open(config.DBDriver, config.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to db")
	}

	server, err := httpserver.New(conn, logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	ctx := logger.WithContext(context.Background())
	go server.Purchase.RunExpirySweeper(ctx, config.SweepInterval)

	if err := server.Engine.Run(config.ServerAddress); err != nil {
		logger.Fatal().Err(err).Msg("cannot start server")
	}
}
