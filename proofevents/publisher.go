package proofevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zk-attestation/proofstore"
	"zk-attestation/shared"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultExchange   = "zk-attestation"
	DefaultRoutingKey = "proofs.stored"
)

// ProofStored is published once for every proof appended to the ledger
type ProofStored struct {
	ProofID       string  `json:"proof_id"`
	SessionID     string  `json:"session_id"`
	ToolName      string  `json:"tool_name"`
	Timestamp     uint64  `json:"timestamp"`
	Verified      bool    `json:"verified"`
	WorkflowStage *string `json:"workflow_stage,omitempty"`
}

func newProofStored(p proofstore.StoredProof) ProofStored {
	return ProofStored{
		ProofID:       p.ProofID,
		SessionID:     p.SessionID,
		ToolName:      p.ToolName,
		Timestamp:     p.Timestamp,
		Verified:      p.Verified,
		WorkflowStage: p.WorkflowStage,
	}
}

// Config selects the broker and the exchange proofs are announced on
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	MaxRetries int
}

func LoadConfig() Config {
	return Config{
		URL:        shared.GetEnvOrDefault("AMQP_URL", ""),
		Exchange:   shared.GetEnvOrDefault("AMQP_EXCHANGE", DefaultExchange),
		RoutingKey: shared.GetEnvOrDefault("AMQP_ROUTING_KEY", DefaultRoutingKey),
		MaxRetries: shared.GetEnvIntOrDefault("AMQP_MAX_RETRIES", 5),
	}
}

// channel is the subset of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher announces stored proofs on a durable topic exchange
type RabbitPublisher struct {
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
	timeout    time.Duration
	logger     *zap.Logger
}

// DialRabbit connects with exponential backoff and declares the exchange
func DialRabbit(config Config, logger *zap.Logger) (*RabbitPublisher, error) {
	if config.Exchange == "" {
		config.Exchange = DefaultExchange
	}
	if config.RoutingKey == "" {
		config.RoutingKey = DefaultRoutingKey
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	var conn *amqp.Connection
	var err error
	wait := time.Second
	for i := 0; i < config.MaxRetries; i++ {
		conn, err = amqp.Dial(config.URL)
		if err == nil {
			break
		}
		logger.Warn("RabbitMQ connection attempt failed",
			zap.Int("attempt", i+1),
			zap.Duration("retry_in", wait),
			zap.Error(err))
		if i+1 < config.MaxRetries {
			time.Sleep(wait)
			wait *= 2
		}
	}
	if err != nil {
		return nil, shared.NewInfraError("dial_rabbitmq", "failed to connect to RabbitMQ", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, shared.NewInfraError("dial_rabbitmq", "failed to open channel", err)
	}

	err = ch.ExchangeDeclare(
		config.Exchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, shared.NewInfraError("dial_rabbitmq", "failed to declare exchange "+config.Exchange, err)
	}

	logger.Info("Publishing proof events",
		zap.String("exchange", config.Exchange),
		zap.String("routing_key", config.RoutingKey))

	p := newRabbitPublisher(ch, config, logger)
	p.conn = conn
	return p, nil
}

func newRabbitPublisher(ch channel, config Config, logger *zap.Logger) *RabbitPublisher {
	return &RabbitPublisher{
		ch:         ch,
		exchange:   config.Exchange,
		routingKey: config.RoutingKey,
		timeout:    5 * time.Second,
		logger:     logger,
	}
}

// PublishProof sends a ProofStored event for p
func (r *RabbitPublisher) PublishProof(ctx context.Context, p proofstore.StoredProof) error {
	body, err := json.Marshal(newProofStored(p))
	if err != nil {
		return fmt.Errorf("failed to encode proof event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err = r.ch.PublishWithContext(ctx,
		r.exchange,
		r.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    p.ProofID,
			Body:         body,
			Timestamp:    time.Unix(int64(p.Timestamp), 0),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return shared.NewInfraError("publish_proof", "failed to publish proof event", err)
	}
	return nil
}

// Hook adapts the publisher to a store append hook. Failures are logged;
// the proof stays stored.
func (r *RabbitPublisher) Hook() func(proofstore.StoredProof) {
	return func(p proofstore.StoredProof) {
		if err := r.PublishProof(context.Background(), p); err != nil {
			r.logger.Error("Proof event not published",
				zap.String("proof_id", p.ProofID),
				zap.String("session_id", p.SessionID),
				zap.Error(err))
		}
	}
}

func (r *RabbitPublisher) Close() error {
	err := r.ch.Close()
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
