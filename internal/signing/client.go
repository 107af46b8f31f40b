package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/splitsquad/splitpay/internal/apperr"
	"github.com/splitsquad/splitpay/internal/model"
)

// SponsorClient is how the client-side pipeline reaches the trusted
// sponsor-signing service.
type SponsorClient interface {
	Sign(ctx context.Context, req model.SponsorSignRequest) (model.SponsorSignResponse, error)
}

// LocalSponsorClient calls an in-process SponsorService. Used when the
// pipeline runs inside the trusted backend, and in tests.
type LocalSponsorClient struct {
	Service *SponsorService
}

func (c *LocalSponsorClient) Sign(ctx context.Context, req model.SponsorSignRequest) (model.SponsorSignResponse, error) {
	return c.Service.Sign(ctx, req)
}

// HTTPSponsorClient calls a remote sponsor service over its wire contract.
type HTTPSponsorClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSponsorClient creates a client for the sponsor endpoint.
func NewHTTPSponsorClient(baseURL string) *HTTPSponsorClient {
	return &HTTPSponsorClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPSponsorClient) Sign(ctx context.Context, req model.SponsorSignRequest) (model.SponsorSignResponse, error) {
	var out model.SponsorSignResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("failed to marshal sponsor request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sponsor/sign", bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("failed to create sponsor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return out, apperr.Wrap(apperr.CodeNetwork, "sponsor service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp model.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return out, apperr.Newf(apperr.CodeValidation, "sponsor rejected with status %d", resp.StatusCode)
		}
		code := apperr.Code(errResp.Code)
		if code == "" {
			code = apperr.CodeValidation
		}
		return out, apperr.New(code, errResp.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode sponsor response: %w", err)
	}
	return out, nil
}
