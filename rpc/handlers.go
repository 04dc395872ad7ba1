package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/settlement"
	"github.com/Kinetic-Labs/kinetic-relay/sponsor"
)

// maxSponsorBodyBytes caps the POST /sponsor request body. A user operation
// with full initCode and callData stays well under this.
const maxSponsorBodyBytes = 1 << 20

// sponsorHandler serves the sponsorship HTTP surface over the policy engine.
type sponsorHandler struct {
	engine *sponsor.Engine
	fees   settlement.FeeConfig
}

func newSponsorHandler(engine *sponsor.Engine, fees settlement.FeeConfig) *sponsorHandler {
	return &sponsorHandler{engine: engine, fees: fees}
}

// handleSponsor - POST /sponsor
func (h *sponsorHandler) handleSponsor(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSponsorBodyBytes)

	var req models.SponsorRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &models.ErrorResponse{
			Category: string(sponsor.CategoryValidation),
			Reason:   "malformed request body: " + err.Error(),
		})
		return
	}
	if req.UserOperation == nil {
		writeError(w, http.StatusBadRequest, &models.ErrorResponse{
			Category: string(sponsor.CategoryValidation),
			Reason:   "missing userOperation",
		})
		return
	}
	if req.ChainID == 0 {
		writeError(w, http.StatusBadRequest, &models.ErrorResponse{
			Category: string(sponsor.CategoryValidation),
			Reason:   "missing chainId",
		})
		return
	}

	auth, err := h.engine.EvaluateAndSign(r.Context(), req.UserOperation, req.ChainID)
	if err != nil {
		status, body := rejectionToResponse(err)
		writeError(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, &models.SponsorResponse{
		SponsorAndData: auth.SponsorAndData,
		OperationHash:  auth.OperationHash.Hex(),
		Remaining: models.WindowCounts{
			Daily:  auth.Remaining.Daily,
			Hourly: auth.Remaining.Hourly,
		},
	})
}

// handleRateLimit - GET /rate-limit/{address}. Read-only: consulting quota
// must never consume it.
func (h *sponsorHandler) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, &models.ErrorResponse{
			Category: string(sponsor.CategoryValidation),
			Reason:   "malformed wallet address",
		})
		return
	}

	checksummed := common.HexToAddress(address).Hex()
	usage := h.engine.Limiter().Usage(checksummed)

	writeJSON(w, http.StatusOK, &models.RateLimitStatus{
		Address: checksummed,
		Used: models.WindowCounts{
			Daily:  usage.UsedDaily,
			Hourly: usage.UsedHourly,
		},
		Remaining: models.WindowCounts{
			Daily:  usage.RemainingDaily,
			Hourly: usage.RemainingHourly,
		},
	})
}

// handleHealth - GET /server/health (also mounted at /health)
func (h *sponsorHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := &models.HealthResponse{
		Status:         "healthy",
		Service:        "kinetic-relay",
		SponsorSigner:  h.engine.SignerAddress().Hex(),
		Chains:         h.engine.Chains(),
		FeeBasisPoints: h.fees.FeeBasisPoints,
	}
	if h.fees.Enabled() {
		resp.FeeRecipient = h.fees.FeeRecipient.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

// rejectionToResponse maps an engine error onto an HTTP status and body.
// Anything that is not a typed rejection is treated as infrastructure.
func rejectionToResponse(err error) (int, *models.ErrorResponse) {
	var rej *sponsor.RejectionError
	if !errors.As(err, &rej) {
		return http.StatusInternalServerError, &models.ErrorResponse{
			Category: string(sponsor.CategoryInfrastructure),
			Reason:   err.Error(),
		}
	}

	body := &models.ErrorResponse{
		Category: string(rej.Category),
		Reason:   rej.Reason,
		Details:  rej.Details,
	}
	switch rej.Category {
	case sponsor.CategoryValidation:
		return http.StatusBadRequest, body
	case sponsor.CategoryRateLimit:
		return http.StatusTooManyRequests, body
	default:
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, body *models.ErrorResponse) {
	writeJSON(w, status, body)
}
