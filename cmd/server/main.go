package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/hudlink/internal/agent"
	"github.com/chadiek/hudlink/internal/companion"
	"github.com/chadiek/hudlink/internal/config"
	httpserver "github.com/chadiek/hudlink/internal/httpserver"
	"github.com/chadiek/hudlink/internal/llm"
	"github.com/chadiek/hudlink/internal/reply"
	"github.com/chadiek/hudlink/internal/state"
	"github.com/chadiek/hudlink/internal/transcript"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model, err := newModel(ctx, cfg)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}

	store := state.NewStore(cfg.Timing.Freshness)
	sweeper, err := state.NewSweeper(store, cfg.SweepSpec)
	if err != nil {
		log.Fatalf("%v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	sttOpts := transcript.Options{
		APIKey:        cfg.AssemblyAIKey,
		TokenTTL:      cfg.TokenTTL,
		SpeakerLabels: cfg.SpeakerLabels,
	}
	sessions := agent.NewRegistry(agent.Deps{
		Store: store,
		NewTranscriber: func(user string) agent.Transcriber {
			return transcript.NewService(user, sttOpts)
		},
		Model:               model,
		Replies:             reply.NewEngine(model),
		Playback:            companion.NewNotifier(cfg.CompanionURL),
		Timing:              cfg.Timing,
		Language:            cfg.DefaultLanguage,
		LanguageCode:        cfg.DefaultLanguageCode,
		DisplayLanguageCode: cfg.DisplayLanguageCode,
	})

	srv := httpserver.New(ctx, httpserver.Options{
		ControlToken:   cfg.ControlToken,
		ICEServersJSON: cfg.ICEServersJSON,
	}, sessions, store)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	// Hijacked websockets are not tracked by Shutdown; cancelling ctx ends them.
	cancel()
	sessions.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

func newModel(ctx context.Context, cfg config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.LLMKey, cfg.LLMBaseURL, cfg.LLMModel)
	default:
		return llm.NewOpenAIClient(cfg.LLMKey, cfg.LLMBaseURL, cfg.LLMModel)
	}
}
