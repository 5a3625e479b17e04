package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zk-attestation/attester"
	"zk-attestation/proofevents"
	"zk-attestation/shared"

	"go.uber.org/zap"
)

func main() {
	config := LoadAttesterConfig()

	logger, err := shared.NewLoggerFromEnv("attester")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var opts []attester.Option
	if config.Events.URL != "" {
		publisher, err := proofevents.DialRabbit(config.Events, logger.Logger)
		if err != nil {
			logger.Critical("Failed to set up proof events", zap.Error(err))
			os.Exit(1)
		}
		defer publisher.Close()
		opts = append(opts, attester.WithProofHook(publisher.Hook()))
	}

	service := attester.NewService(config.Service, logger, opts...)

	// proving a fresh program includes the circuit setup, so writes get a
	// longer budget than reads
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      service.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.WriteTimeout,
	}

	logger.Info("Starting attestation server", zap.Int("port", config.Port))
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-serverErr:
		logger.Critical("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
