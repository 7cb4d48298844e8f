// gateway is the public-facing HTTP service.
// It answers single-shader requests synchronously, accepts whole
// program submissions (published as program.requested), and relays
// shader.* / program.* / log.* events to browsers over WebSocket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/shaderforge/shared/config"
	"github.com/forge-ai/shaderforge/shared/mq"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	_ = godotenv.Load()

	cfg := config.FromEnv()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	broker, err := mq.New(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("mq connect")
	}
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; cancel() }()

	gw := newGateway(broker, cfg.ShaderService())

	log.Info().Str("port", cfg.Port).Str("model", cfg.Model).Msg("gateway online")

	if err := gw.run(ctx, gw.server(), ":"+cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
