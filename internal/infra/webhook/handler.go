package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"linear_reminder_bot/internal/app"
	"linear_reminder_bot/internal/domain/tracking"
	"linear_reminder_bot/internal/infra/config"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps a single webhook delivery.
const maxBodyBytes = 1 << 20

// Processor applies a decoded status change.
type Processor interface {
	Process(ctx context.Context, ev tracking.StatusChange) (tracking.Outcome, error)
}

// Handler handles Linear issue webhooks.
type Handler struct {
	signingSecret config.Secret
	processor     Processor
	logger        *logrus.Entry
}

func NewHandler(signingSecret config.Secret, processor Processor, logger *logrus.Entry) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		processor:     processor,
		logger:        logger,
	}
}

// Handle verifies, decodes and applies one delivery.
// 200 on processed or ignored, 401 on bad signature, 400 on bad payload, 500 on store failure.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithField("request_id", middleware.GetReqID(r.Context()))

	// 1. Read the exact wire bytes; the signature covers them as sent.
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.WithField("limit", tooLarge.Limit).Warn("Payload too large")
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		log.WithError(err).Warn("Error reading payload")
		writeJSONError(w, http.StatusBadRequest, "error reading payload")
		return
	}

	// 2. Verify signature
	signature := r.Header.Get(SignatureHeader)
	if err := ValidateSignatureHeader(signature); err != nil {
		log.WithError(err).Warn("Invalid signature header")
		writeJSONError(w, http.StatusUnauthorized, ErrInvalidSignature.Error())
		return
	}
	if !VerifySignature(payload, signature, h.signingSecret.Reveal()) {
		log.Warn("Signature verification failed")
		writeJSONError(w, http.StatusUnauthorized, ErrInvalidSignature.Error())
		return
	}

	// 3. Decode
	ev, err := DecodeIssueEvent(payload)
	if err != nil {
		log.WithError(err).Warn("Rejected malformed payload")
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev == nil {
		log.Debug("Ignoring untracked event type")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	// 4. Apply
	outcome, err := h.processor.Process(r.Context(), *ev)
	if err != nil {
		if errors.Is(err, app.ErrBadPayload) {
			log.WithError(err).Warn("Rejected malformed event")
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.WithError(err).WithField("item_id", ev.ItemID).Error("Failed to process event")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "processed",
		"outcome": string(outcome),
	})
}

// writeJSONError writes a JSON-encoded error response with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
