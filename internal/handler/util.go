package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/teamup-labs/chat-platform/internal/feed"
	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/internal/store"
	"github.com/teamup-labs/chat-platform/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeStoreError maps store failures onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrBlocked):
		writeError(w, http.StatusForbidden, "conversation blocked")
	case errors.Is(err, store.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "not allowed")
	default:
		log.Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, op)
	}
}

// publishChange emits a change event after a successful mutation. A
// nil publisher means the deployment runs without realtime updates;
// publish failures are logged, never surfaced: the row is already
// committed and clients reconcile on their next fetch.
func publishChange(ctx context.Context, pub *feed.Publisher, log *logger.Logger, t model.ChangeType, table string, row any, scope string) {
	if pub == nil {
		return
	}
	ev, err := model.NewChangeEvent(t, table, row)
	if err != nil {
		log.Error("encode change event", zap.String("table", table), zap.Error(err))
		return
	}
	if err := pub.Publish(ctx, ev, scope); err != nil {
		log.Warn("publish change event", zap.String("table", table), zap.Error(err))
	}
}
