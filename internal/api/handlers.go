/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's API
 * endpoints. Handlers parse incoming requests, call the saga coordinator, and
 * map its error taxonomy onto HTTP status codes. They act as the bridge
 * between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dlsbank/transfer-service/internal/app"
	"github.com/dlsbank/transfer-service/internal/domain"
	"github.com/dlsbank/transfer-service/internal/store"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

// InitiateTransferHandler handles requests to start a transfer saga. The
// response is written once the saga resolves: completed, declined, or
// provisionally completed after a verdict timeout.
func (h *TransferHandlers) InitiateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.InitiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=initiate_transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.service.InitiateTransfer(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=initiate_transfer outcome=failed user_id=%s err=%v", userID, err)
		switch {
		case errors.Is(err, app.ErrInvalidTransferAmount),
			errors.Is(err, app.ErrMissingAccount),
			errors.Is(err, app.ErrSameAccountTransfer),
			errors.Is(err, app.ErrUnknownAccount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrNotAccountOwner):
			h.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, app.ErrInsufficientFunds):
			h.writeError(w, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, app.ErrDependencyUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, "A required dependency is unavailable; please retry")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, domain.InitiateTransferResponse{
		TransferID:    transfer.TransferID,
		Status:        transfer.Status,
		StatusMessage: statusMessage(transfer.Status),
	})
}

// GetTransferHandler returns one ledger record by its logical transfer id.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "transferID")
	if transferID == "" {
		h.writeError(w, http.StatusBadRequest, "Transfer id is required")
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), transferID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			h.writeError(w, http.StatusNotFound, "Transfer not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_transfer transfer_id=%s err=%v", transferID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

func statusMessage(status string) string {
	switch status {
	case domain.StatusCompleted:
		return "Transfer completed"
	case domain.StatusDeclined:
		return "Transfer declined by fraud check"
	default:
		return "Transfer " + status
	}
}

func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
