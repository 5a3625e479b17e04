package attester

import (
	"net/http"
	"time"

	"zk-attestation/proofstore"
	"zk-attestation/proofverifier"
	"zk-attestation/shared"
	"zk-attestation/zkvm"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Protocol labels returned with stored proofs
const (
	ProtocolName        = "Reclaim"
	IssuerName          = "Agent-B"
	VerificationService = "zk-attestation-service"
	SignatureAlgorithm  = "ECDSA"
)

// Config holds the tunables of the attestation service
type Config struct {
	MaxELFBytes     int64
	ProverWorkers   int
	FreshnessWindow time.Duration
	WatchBuffer     int
	Onchain         proofverifier.OnchainConfig
}

// DefaultConfig mirrors the production defaults
func DefaultConfig() Config {
	return Config{
		MaxELFBytes:     20 << 20,
		FreshnessWindow: proofstore.DefaultFreshnessWindow,
		WatchBuffer:     16,
		Onchain: proofverifier.OnchainConfig{
			RPCURL:          proofverifier.DefaultRPCURL,
			ContractAddress: proofverifier.DefaultContractAddress,
		},
	}
}

// Service owns every piece of shared state; handlers are its methods.
type Service struct {
	config   Config
	registry *zkvm.Registry
	keys     *zkvm.KeyCache
	prover   *zkvm.Prover
	store    *proofstore.Store
	verifier *proofverifier.Verifier
	logger   *shared.Logger
	now      func() time.Time
	upgrader websocket.Upgrader
}

type serviceOptions struct {
	executor zkvm.Executor
	dialer   proofverifier.Dialer
	now      func() time.Time
	hooks    []func(proofstore.StoredProof)
}

// Option customizes collaborators, mostly for tests
type Option func(*serviceOptions)

func WithExecutor(executor zkvm.Executor) Option {
	return func(o *serviceOptions) { o.executor = executor }
}

func WithDialer(dialer proofverifier.Dialer) Option {
	return func(o *serviceOptions) { o.dialer = dialer }
}

func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithProofHook is called for every stored proof, e.g. to publish events
func WithProofHook(hook func(proofstore.StoredProof)) Option {
	return func(o *serviceOptions) { o.hooks = append(o.hooks, hook) }
}

func NewService(config Config, logger *shared.Logger, opts ...Option) *Service {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if config.MaxELFBytes <= 0 {
		config.MaxELFBytes = DefaultConfig().MaxELFBytes
	}
	if config.FreshnessWindow <= 0 {
		config.FreshnessWindow = proofstore.DefaultFreshnessWindow
	}
	if config.WatchBuffer <= 0 {
		config.WatchBuffer = DefaultConfig().WatchBuffer
	}

	registry := zkvm.NewRegistry()
	keys := zkvm.NewKeyCache(registry, logger.Logger)
	pool := zkvm.NewWorkerPool(config.ProverWorkers)
	onchain := proofverifier.NewOnchainVerifier(config.Onchain, o.dialer, logger.Logger)

	storeOpts := []proofstore.Option{proofstore.WithClock(o.now)}
	for _, hook := range o.hooks {
		storeOpts = append(storeOpts, proofstore.WithAppendHook(hook))
	}

	logger.Info("Attestation service configured",
		zap.Int("prover_workers", pool.Size()),
		zap.Int64("max_elf_bytes", config.MaxELFBytes),
		zap.Duration("freshness_window", config.FreshnessWindow),
		zap.String("rpc_url", config.Onchain.RPCURL),
		zap.String("verifier_contract", config.Onchain.ContractAddress),
		zap.Bool("transactional_enabled", config.Onchain.PrivateKey != ""))

	return &Service{
		config:   config,
		registry: registry,
		keys:     keys,
		prover:   zkvm.NewProver(registry, keys, o.executor, pool, logger.Logger),
		store:    proofstore.NewStore(logger.Logger, storeOpts...),
		verifier: proofverifier.NewVerifier(onchain, logger.Logger),
		logger:   logger,
		now:      o.now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Store exposes the proof ledger
func (s *Service) Store() *proofstore.Store {
	return s.store
}
