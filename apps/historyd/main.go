// historyd consumes the chat topic and persists normalized messages into
// the history store that serves backfill pages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/db"
	"github.com/duochat/duochat/pkg/history"
	"github.com/duochat/duochat/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Env).With().Str("service", "historyd").Logger()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatal().Err(err).Msg("scylla connect failed")
	}
	defer session.Close()

	if err := session.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}

	store := history.NewStore(session)
	consumer := NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "historyd", store, log)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("historyd starting")
	consumer.Consume(ctx)
}
