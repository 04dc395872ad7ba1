package models

// SponsorRequest - POST /sponsor body
type SponsorRequest struct {
	UserOperation *UserOperation `json:"userOperation"`
	ChainID       uint64         `json:"chainId"`
}

// WindowCounts carries per-window numbers for the rate limiter.
type WindowCounts struct {
	Daily  int `json:"daily"`
	Hourly int `json:"hourly"`
}

// SponsorResponse - successful sponsorship result
type SponsorResponse struct {
	SponsorAndData string       `json:"sponsorAndData"`
	OperationHash  string       `json:"operationHash"`
	Remaining      WindowCounts `json:"remaining"`
}

// RateLimitStatus - GET /rate-limit/{address} response
type RateLimitStatus struct {
	Address   string       `json:"address"`
	Used      WindowCounts `json:"used"`
	Remaining WindowCounts `json:"remaining"`
}

// ErrorResponse - unified error body. Category is machine-discriminable so a
// client can decide whether to retry, adjust the intent, or give up.
type ErrorResponse struct {
	Category string   `json:"category"` // "validation" | "rate_limit" | "infrastructure"
	Reason   string   `json:"reason"`
	Details  []string `json:"details,omitempty"`
}

// HealthResponse - GET /server/health response: identity of the signing key,
// the chains the sponsor is configured for, and the settlement fee schedule.
type HealthResponse struct {
	Status         string   `json:"status"`
	Service        string   `json:"service"`
	SponsorSigner  string   `json:"sponsor_signer"`
	Chains         []uint64 `json:"chains"`
	FeeBasisPoints uint32   `json:"fee_basis_points"`
	FeeRecipient   string   `json:"fee_recipient,omitempty"`
}
