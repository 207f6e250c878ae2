package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bowerhall/lumen/internal/chat"
	"github.com/bowerhall/lumen/internal/config"
	"github.com/bowerhall/lumen/internal/llm"
	"github.com/bowerhall/lumen/internal/logger"
	"github.com/bowerhall/lumen/internal/server"
	"github.com/bowerhall/lumen/internal/tools"
	"github.com/bowerhall/lumen/internal/turn"
)

var version = "dev"

func init() {
	godotenv.Load()
}

func main() {
	root := &cobra.Command{
		Use:   "lumen",
		Short: "Chat client core for a hosted generative-AI backend",
	}

	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("lumen", version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	model, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		ImageModel:  cfg.LLM.ImageModel,
		SpeechModel: cfg.LLM.SpeechModel,
	})
	if err != nil {
		return fmt.Errorf("create llm: %w", err)
	}

	store := chat.NewStore()
	registry := tools.NewRegistry()

	if gen, ok := model.(llm.ImageGenerator); ok {
		tools.RegisterImageTool(registry, gen)
	} else {
		logger.Info("provider has no image backend, image generation disabled", "provider", cfg.LLM.Provider)
	}

	controller := turn.New(store, model, registry, cfg.SystemPrompt)
	controller.SetStrings(cannedStrings(cfg.Strings))
	controller.SetListener(func(s turn.Status) {
		logger.Debug("loading state changed", "status", s)
	})

	speech, _ := model.(llm.SpeechSynthesizer)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(store, controller, speech),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "provider", cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func cannedStrings(cfg config.StringsConfig) turn.Strings {
	s := turn.DefaultStrings()
	if cfg.Apology != "" {
		s.Apology = cfg.Apology
	}
	if cfg.ImageApology != "" {
		s.ImageApology = cfg.ImageApology
	}
	if cfg.ImageConfirmation != "" {
		s.ImageConfirmation = cfg.ImageConfirmation
	}
	if cfg.Placeholder != "" {
		s.Placeholder = cfg.Placeholder
	}
	return s
}
