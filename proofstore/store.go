package proofstore

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"zk-attestation/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is an in-memory, session-partitioned, append-only proof ledger
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]StoredProof

	watchMu  sync.Mutex
	watchers map[string]map[*watcher]struct{}

	hooks  []func(StoredProof)
	now    func() time.Time
	logger *zap.Logger
}

type watcher struct {
	ch chan StoredProof
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the submission clock
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithAppendHook runs hook after every append, outside the store locks
func WithAppendHook(hook func(StoredProof)) Option {
	return func(s *Store) { s.hooks = append(s.hooks, hook) }
}

func NewStore(logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string][]StoredProof),
		watchers: make(map[string]map[*watcher]struct{}),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit assigns a proof id and server timestamp and appends the record
func (s *Store) Submit(sub Submission) (*StoredProof, error) {
	if sub.SessionID == "" {
		return nil, shared.NewInputError("submit_proof", "session_id is required")
	}
	if sub.ToolName == "" {
		return nil, shared.NewInputError("submit_proof", "tool_name is required")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, shared.NewInfraError("submit_proof", "failed to generate proof id", err)
	}

	record := StoredProof{
		ProofID:           id.String(),
		SessionID:         sub.SessionID,
		ToolName:          sub.ToolName,
		Timestamp:         uint64(s.now().Unix()),
		Request:           sub.Request,
		Response:          sub.Response,
		Proof:             sub.Proof,
		Verified:          sub.Verified,
		OnchainCompatible: sub.OnchainCompatible,
		SubmittedBy:       sub.SubmittedBy,
		Sequence:          sub.Sequence,
		RelatedProofID:    sub.RelatedProofID,
		WorkflowStage:     sub.WorkflowStage,
		DisplayResponse:   sub.DisplayResponse,
		RedactionMetadata: s.decodeRedactionMetadata(sub),
	}

	s.Append(record)

	s.logger.Info("Stored proof",
		zap.String("proof_id", record.ProofID),
		zap.String("session_id", record.SessionID),
		zap.String("tool_name", record.ToolName),
		zap.Uint64("timestamp", record.Timestamp))

	return &record, nil
}

// An unparseable redaction summary is dropped rather than failing the submission.
func (s *Store) decodeRedactionMetadata(sub Submission) *RedactionMetadata {
	raw := bytes.TrimSpace(sub.RedactionMetadata)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var meta RedactionMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.logger.Warn("Ignoring invalid redaction_metadata",
			zap.String("session_id", sub.SessionID),
			zap.String("tool_name", sub.ToolName),
			zap.Error(err))
		return nil
	}
	return &meta
}

// Append inserts a prepared record keeping the session sorted by
// timestamp; records with equal timestamps keep insertion order.
func (s *Store) Append(record StoredProof) {
	s.mu.Lock()
	proofs := s.sessions[record.SessionID]
	i := sort.Search(len(proofs), func(i int) bool {
		return proofs[i].Timestamp > record.Timestamp
	})
	proofs = append(proofs, StoredProof{})
	copy(proofs[i+1:], proofs[i:])
	proofs[i] = record
	s.sessions[record.SessionID] = proofs
	s.mu.Unlock()

	s.notify(record)
	for _, hook := range s.hooks {
		hook(record)
	}
}

// GetByID scans every session for proofID
func (s *Store) GetByID(proofID string) (*StoredProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, proofs := range s.sessions {
		for i := range proofs {
			if proofs[i].ProofID == proofID {
				p := proofs[i]
				return &p, nil
			}
		}
	}
	return nil, shared.NewNotFoundError("get_proof", "proof %s not found", proofID)
}

// GetBySession returns a copy of the session's proofs in timestamp order
func (s *Store) GetBySession(sessionID string) []StoredProof {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proofs := s.sessions[sessionID]
	out := make([]StoredProof, len(proofs))
	copy(out, proofs)
	return out
}

func (s *Store) Count(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// Clear drops a session and returns how many proofs it held
func (s *Store) Clear(sessionID string) int {
	s.mu.Lock()
	n := len(s.sessions[sessionID])
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info("Cleared session proofs", zap.String("session_id", sessionID), zap.Int("removed", n))
	}
	return n
}

// Subscribe streams proofs appended to sessionID after the call. Slow
// readers miss records once the buffer is full. The returned func
// unsubscribes and closes the channel.
func (s *Store) Subscribe(sessionID string, buffer int) (<-chan StoredProof, func()) {
	w := &watcher{ch: make(chan StoredProof, buffer)}

	s.watchMu.Lock()
	if s.watchers[sessionID] == nil {
		s.watchers[sessionID] = make(map[*watcher]struct{})
	}
	s.watchers[sessionID][w] = struct{}{}
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers[sessionID], w)
			if len(s.watchers[sessionID]) == 0 {
				delete(s.watchers, sessionID)
			}
			close(w.ch)
			s.watchMu.Unlock()
		})
	}
	return w.ch, cancel
}

func (s *Store) notify(record StoredProof) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for w := range s.watchers[record.SessionID] {
		select {
		case w.ch <- record:
		default:
			s.logger.Warn("Dropping proof notification for slow watcher",
				zap.String("session_id", record.SessionID),
				zap.String("proof_id", record.ProofID))
		}
	}
}

// Watchers returns the number of live subscriptions for sessionID
func (s *Store) Watchers(sessionID string) int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return len(s.watchers[sessionID])
}
