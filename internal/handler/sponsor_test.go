package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/splitsquad/splitpay/internal/dedup"
	"github.com/splitsquad/splitpay/internal/model"
	"github.com/splitsquad/splitpay/internal/signing"
	"github.com/splitsquad/splitpay/internal/txbuilder"
)

func newTestHandler(t *testing.T) *SponsorHandler {
	t.Helper()
	treasury := signing.NewKeypairSigner(solana.NewWallet().PrivateKey)
	mint := solana.NewWallet().PublicKey()
	service, err := signing.NewSponsorService(
		treasury, mint, txbuilder.DefaultFeeSchedule(), dedup.NewMemoryGuard(10*time.Minute), 5)
	if err != nil {
		t.Fatalf("failed to build sponsor service: %v", err)
	}
	return NewSponsorHandler(service)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var body model.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestSignRejectsNonPost(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Sign(rec, httptest.NewRequest(http.MethodGet, "/sponsor/sign", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestSignMalformedBody(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sponsor/sign", strings.NewReader("{not json"))
	h.Sign(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "VALIDATION" {
		t.Errorf("error code = %s, want VALIDATION", body.Code)
	}
}

func TestSignPolicyRejectionIs422(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	// Well-formed JSON that fails the service's input checks.
	payload := `{"serializedPartiallySignedTx":"","purpose":"funding","idempotencyKey":"k"}`
	req := httptest.NewRequest(http.MethodPost, "/sponsor/sign", strings.NewReader(payload))
	h.Sign(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != "VALIDATION" || body.Error == "" {
		t.Errorf("error body = %+v", body)
	}
}

func TestAddress(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Address(rec, httptest.NewRequest(http.MethodGet, "/sponsor/address", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if _, err := solana.PublicKeyFromBase58(body["address"]); err != nil {
		t.Errorf("address %q is not a valid public key: %v", body["address"], err)
	}

	rec = httptest.NewRecorder()
	h.Address(rec, httptest.NewRequest(http.MethodPost, "/sponsor/address", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s", ct)
	}
}
