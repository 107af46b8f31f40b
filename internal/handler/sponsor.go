// Package handler exposes the sponsor-signing service over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/logging"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/signing"
)

// SponsorHandler serves the co-signing endpoints backed by a SponsorService.
type SponsorHandler struct {
	service *signing.SponsorService
}

// NewSponsorHandler creates a SponsorHandler.
func NewSponsorHandler(service *signing.SponsorService) *SponsorHandler {
	return &SponsorHandler{service: service}
}

// Sign handles POST /sponsor/sign
// @Summary      Co-sign a partially signed transaction
// @Description  Validates a user-signed transaction against the sponsor policy and adds the treasury fee-payer signature
// @Tags         sponsor
// @Accept       json
// @Produce      json
// @Param        request  body      model.SponsorSignRequest  true  "Partially signed transaction"
// @Success      200      {object}  model.SponsorSignResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Failure      422      {object}  model.ErrorResponse
// @Failure      429      {object}  model.ErrorResponse
// @Router       /sponsor/sign [post]
func (h *SponsorHandler) Sign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.SponsorSignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperr.Wrap(apperr.CodeValidation, "malformed request body", err))
		return
	}

	resp, err := h.service.Sign(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Address handles GET /sponsor/address
// @Summary      Get the treasury fee-payer address
// @Tags         sponsor
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /sponsor/address [get]
func (h *SponsorHandler) Address(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": h.service.TreasuryAddress()})
}

// Health handles GET /healthz
// @Summary      Liveness check
// @Tags         meta
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func (h *SponsorHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError maps the error taxonomy to HTTP statuses. Sponsor policy
// rejections are 422 so callers can distinguish them from malformed input.
func statusForError(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		return http.StatusUnprocessableEntity
	case apperr.CodeInvalidAddress, apperr.CodeAmountNotPositive:
		return http.StatusBadRequest
	case apperr.CodeDuplicateTransaction:
		return http.StatusConflict
	case apperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError returns the stable code plus a human message. Raw internal
// errors never reach the response body.
func writeError(w http.ResponseWriter, status int, err error) {
	code := apperr.CodeOf(err)
	message := "internal error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logging.Sponsor.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, model.ErrorResponse{Error: message, Code: string(code)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
