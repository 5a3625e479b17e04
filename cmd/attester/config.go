package main

import (
	"log"
	"time"

	"zk-attestation/attester"
	"zk-attestation/proofevents"
	"zk-attestation/proofstore"
	"zk-attestation/proofverifier"
	"zk-attestation/shared"

	"github.com/joho/godotenv"
)

type AttesterConfig struct {
	Port         int           `json:"port"`
	WriteTimeout time.Duration `json:"write_timeout"`

	Service attester.Config    `json:"-"`
	Events  proofevents.Config `json:"-"`
}

func LoadAttesterConfig() *AttesterConfig {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	} else {
		log.Printf("Successfully loaded .env file")
	}

	defaults := attester.DefaultConfig()

	return &AttesterConfig{
		Port:         shared.GetEnvIntOrDefault("PORT", 8000),
		WriteTimeout: shared.GetEnvDurationOrDefault("WRITE_TIMEOUT", 5*time.Minute),
		Service: attester.Config{
			MaxELFBytes:     shared.GetEnvInt64OrDefault("MAX_ELF_BYTES", defaults.MaxELFBytes),
			ProverWorkers:   shared.GetEnvIntOrDefault("PROVER_WORKERS", 0),
			FreshnessWindow: shared.GetEnvDurationOrDefault("PROOF_FRESHNESS", proofstore.DefaultFreshnessWindow),
			WatchBuffer:     shared.GetEnvIntOrDefault("WATCH_BUFFER", defaults.WatchBuffer),
			Onchain:         proofverifier.LoadOnchainConfig(),
		},
		Events: proofevents.LoadConfig(),
	}
}
