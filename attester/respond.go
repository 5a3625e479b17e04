package attester

import (
	"encoding/json"
	"errors"
	"net/http"

	"zk-attestation/attestclient"
	"zk-attestation/shared"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusForError(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	switch shared.KindOf(err) {
	case shared.KindInput:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindPolicy:
		return http.StatusUnprocessableEntity
	case shared.KindInfra:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code and the common error body
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	kind := shared.KindOf(err)

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Stringer("kind", kind),
		zap.Error(err),
	}
	switch {
	case status >= 500:
		s.logger.Error("Request failed", fields...)
	case kind == shared.KindPolicy:
		s.logger.Security("Request rejected by policy", fields...)
	default:
		s.logger.Debug("Request rejected", fields...)
	}

	writeJSON(w, status, attestclient.ErrorResponse{
		Success: false,
		Error:   shared.MessageOf(err),
		Kind:    kind.String(),
		TxHash:  shared.TxHashOf(err),
	})
}
