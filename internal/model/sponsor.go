package model

// SponsorSignRequest is the wire contract of the trusted sponsor-signing
// service. The transaction is base64, already signed by the sender authority.
type SponsorSignRequest struct {
	SerializedTx   string  `json:"serializedPartiallySignedTx"`
	Purpose        Purpose `json:"purpose"`
	IdempotencyKey string  `json:"idempotencyKey"`
}

// SponsorSignResponse carries the fully co-signed transaction back to the
// caller.
type SponsorSignResponse struct {
	SerializedTx string `json:"serializedFullySignedTx"`
}

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
