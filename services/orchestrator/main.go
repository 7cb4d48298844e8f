// The orchestrator turns one program.requested into a complete shader
// program:
//
//   program.requested
//     → shader.vertex.requested
//     ← shader.generated (vertex)
//     → shader.fragment.requested (embeds the vertex source)
//     ← shader.generated (fragment)
//     → program.done
//
//   ← shader.failed (either stage) → program.failed
//
// A failed stage ends the program; nothing is retried. Every step is also
// published as log.event for the gateway WebSocket relay.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/shaderforge/services/orchestrator/internal"
	"github.com/forge-ai/shaderforge/shared/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	_ = godotenv.Load()

	cfg := config.FromEnv()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutdown signal, stopping orchestrator")
		cancel()
	}()

	o, err := internal.NewOrchestrator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start orchestrator")
	}
	defer o.Close()

	log.Info().Str("amqp", cfg.AMQPURL).Msg("orchestrator online")

	if err := o.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("orchestrator exited")
	}
}
