package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/soundforge/Tempo/internal/middleware"
	"github.com/soundforge/Tempo/pkg/types"
)

// maxBodyBytes caps webhook payloads. Providers send small JSON documents;
// anything beyond this is not a webhook.
const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, types.ProviderStripe)
}

func (h *Handler) HandlePayPal(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, types.ProviderPayPal)
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request, provider types.Provider) {
	logger := middleware.GetLogger(r.Context())
	requestID := middleware.GetRequestID(r)

	// The signature covers the exact bytes on the wire, so the body must be
	// captured before any parsing.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMalformedPayload, "failed to read request body", requestID)
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, CodeMalformedPayload, "payload too large", requestID)
		return
	}

	ack, err := h.service.Process(r.Context(), provider, r.Header, body, requestID, middleware.GetSourceIP(r))
	if err != nil {
		var rejection *Rejection
		if !errors.As(err, &rejection) {
			rejection = &Rejection{Status: http.StatusInternalServerError, Code: CodeInternal, Err: err}
		}

		// Rejections log the reason, never the payload.
		logger.Warn().Err(rejection.Err).
			Str("provider", string(provider)).
			Str("code", rejection.Code).
			Int("status", rejection.Status).
			Msg("webhook rejected")

		message := rejection.Err.Error()
		if rejection.Status >= http.StatusInternalServerError {
			message = "webhook processing failed"
		}
		writeError(w, rejection.Status, rejection.Code, message, requestID)
		return
	}

	writeJSON(w, http.StatusOK, ack)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, types.WebhookError{
		Error:     message,
		Code:      code,
		RequestID: requestID,
	})
}
