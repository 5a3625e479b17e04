package attester

import (
	"net/http"
	"time"

	"zk-attestation/proofstore"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = 54 * time.Second
)

// handleWatchSession upgrades to a websocket and streams every proof
// appended to the session after the connection is established.
func (s *Service) handleWatchSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	logger := s.logger.WithSession(sessionID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade watch connection", zap.Error(err))
		return
	}

	updates, cancel := s.store.Subscribe(sessionID, s.config.WatchBuffer)
	logger.Info("Session watcher connected", zap.String("remote_addr", r.RemoteAddr))

	done := make(chan struct{})
	go s.watchReadPump(conn, done)
	s.watchWritePump(conn, updates, done, logger)

	cancel()
	conn.Close()
	logger.Info("Session watcher disconnected")
}

// watchReadPump drains control frames and reports when the peer goes away
func (s *Service) watchReadPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(watchPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(watchPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Watch connection read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Service) watchWritePump(conn *websocket.Conn, updates <-chan proofstore.StoredProof, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(watchPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case proof, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(proof); err != nil {
				logger.Debug("Watch write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("Watch ping failed", zap.Error(err))
				return
			}
		}
	}
}
