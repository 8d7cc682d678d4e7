package handler

import (
	"encoding/json"
	"net/http"

	"propscan-api/internal/service"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/response"
)

// OfflineHandler exposes the offline operation queue.
type OfflineHandler struct {
	queue *service.OfflineQueue
}

// NewOfflineHandler creates a new offline handler.
func NewOfflineHandler(queue *service.OfflineQueue) *OfflineHandler {
	return &OfflineHandler{queue: queue}
}

// EnqueueRequest is a property mutation to queue.
type EnqueueRequest struct {
	Type     string          `json:"type"`
	TargetID string          `json:"target_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Enqueue handles POST /api/v1/offline
func (h *OfflineHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	op, err := h.queue.Enqueue(r.Context(), req.Type, req.TargetID, req.Data)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, op)
}

// Sync handles POST /api/v1/offline/sync
func (h *OfflineHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.queue.Sync(r.Context())
	if err != nil {
		response.Error(w, apierror.Unknown("failed to sync offline queue"))
		return
	}
	response.OK(w, result)
}

// Pending handles GET /api/v1/offline/pending
func (h *OfflineHandler) Pending(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{
		"pending": h.queue.Pending(r.Context()),
		"items":   h.queue.Items(r.Context()),
	})
}
