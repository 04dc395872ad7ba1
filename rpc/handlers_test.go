package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/planner"
	"github.com/Kinetic-Labs/kinetic-relay/planner/adapters"
	"github.com/Kinetic-Labs/kinetic-relay/registry"
	"github.com/Kinetic-Labs/kinetic-relay/settlement"
	"github.com/Kinetic-Labs/kinetic-relay/sponsor"
)

const (
	testSignerKey       = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testSponsorContract = "0x5555555555555555555555555555555555555555"
	testWallet          = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	testChainID         = uint64(8453)
)

func newTestEngine(t *testing.T, maxPerHour int) *sponsor.Engine {
	t.Helper()
	signer, err := sponsor.NewSignerFromHex(testSignerKey)
	assert.NoError(t, err)
	limiter := sponsor.NewSlidingLimiter(sponsor.Limits{MaxPerDay: 100, MaxPerHour: maxPerHour})
	contracts := map[uint64]common.Address{
		testChainID: common.HexToAddress(testSponsorContract),
	}
	return sponsor.NewEngine(contracts, limiter, signer, nil)
}

func newTestRouter(engine *sponsor.Engine) *chi.Mux {
	return newTestRouterWithFees(engine, settlement.FeeConfig{})
}

func newTestRouterWithFees(engine *sponsor.Engine, fees settlement.FeeConfig) *chi.Mux {
	h := newSponsorHandler(engine, fees)
	mux := chi.NewMux()
	mux.Post("/sponsor", h.handleSponsor)
	mux.Get("/rate-limit/{address}", h.handleRateLimit)
	mux.Get("/health", h.handleHealth)
	return mux
}

func sponsorBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(&models.SponsorRequest{
		UserOperation: &models.UserOperation{
			Sender:               common.HexToAddress(testWallet),
			Nonce:                "0x7",
			InitCode:             "0x",
			CallData:             "0xdeadbeef",
			CallGasLimit:         "0x30000",
			VerificationGasLimit: "0x20000",
			PreVerificationGas:   "0x10000",
			MaxFeePerGas:         "0x3b9aca00",
			MaxPriorityFeePerGas: "0x3b9aca00",
		},
		ChainID: testChainID,
	})
	assert.NoError(t, err)
	return body
}

func TestHandleSponsor_Grants(t *testing.T) {
	mux := newTestRouter(newTestEngine(t, 3))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sponsor", bytes.NewReader(sponsorBody(t)))
	mux.ServeHTTP(rec, req)

	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, rec.Header().Get("Content-Type"), "application/json")

	var resp models.SponsorResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(strings.ToLower(resp.SponsorAndData), strings.ToLower(testSponsorContract)))
	// 20-byte sponsor address plus a 65-byte signature
	assert.Equal(t, len(resp.SponsorAndData), 2+2*(20+65))
	assert.That(t, strings.HasPrefix(resp.OperationHash, "0x"))
	assert.Equal(t, resp.Remaining.Hourly, 2)
	assert.Equal(t, resp.Remaining.Daily, 99)
}

func TestHandleSponsor_MalformedBody(t *testing.T) {
	mux := newTestRouter(newTestEngine(t, 3))

	for _, body := range []string{
		"{not json",
		`{"unknown_field": 1}`,
		`{"chainId": 8453}`,
		`{"userOperation": {"sender": "0x` + testWallet[2:] + `"}}`,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sponsor", strings.NewReader(body))
		mux.ServeHTTP(rec, req)

		assert.Equal(t, rec.Code, http.StatusBadRequest)
		var resp models.ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, resp.Category, string(sponsor.CategoryValidation))
	}
}

func TestHandleSponsor_UnknownChain(t *testing.T) {
	mux := newTestRouter(newTestEngine(t, 3))

	var req models.SponsorRequest
	assert.NoError(t, json.Unmarshal(sponsorBody(t), &req))
	req.ChainID = 1
	body, err := json.Marshal(&req)
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sponsor", bytes.NewReader(body)))

	assert.Equal(t, rec.Code, http.StatusInternalServerError)
	var resp models.ErrorResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, resp.Category, string(sponsor.CategoryInfrastructure))
}

func TestHandleSponsor_RateLimited(t *testing.T) {
	mux := newTestRouter(newTestEngine(t, 2))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sponsor", bytes.NewReader(sponsorBody(t))))
		assert.Equal(t, rec.Code, http.StatusOK)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sponsor", bytes.NewReader(sponsorBody(t))))
	assert.Equal(t, rec.Code, http.StatusTooManyRequests)

	var resp models.ErrorResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, resp.Category, string(sponsor.CategoryRateLimit))
}

func TestHandleRateLimit_ReadOnly(t *testing.T) {
	engine := newTestEngine(t, 3)
	mux := newTestRouter(engine)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sponsor", bytes.NewReader(sponsorBody(t))))
	assert.Equal(t, rec.Code, http.StatusOK)

	// polling the status endpoint repeatedly must not consume quota
	for i := 0; i < 5; i++ {
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rate-limit/"+testWallet, nil))
		assert.Equal(t, rec.Code, http.StatusOK)

		var status models.RateLimitStatus
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, status.Address, testWallet)
		assert.Equal(t, status.Used.Hourly, 1)
		assert.Equal(t, status.Used.Daily, 1)
		assert.Equal(t, status.Remaining.Hourly, 2)
		assert.Equal(t, status.Remaining.Daily, 99)
	}
}

func TestHandleRateLimit_ChecksumsLookup(t *testing.T) {
	mux := newTestRouter(newTestEngine(t, 3))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rate-limit/"+strings.ToLower(testWallet), nil))
	assert.Equal(t, rec.Code, http.StatusOK)

	var status models.RateLimitStatus
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, status.Address, testWallet)
}

func TestHandleRateLimit_MalformedAddress(t *testing.T) {
	mux := newTestRouter(newTestEngine(t, 3))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rate-limit/not-an-address", nil))
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestHandleHealth(t *testing.T) {
	engine := newTestEngine(t, 3)
	mux := newTestRouter(engine)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, rec.Code, http.StatusOK)

	var resp models.HealthResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, resp.Status, "healthy")
	assert.Equal(t, resp.Service, "kinetic-relay")
	assert.Equal(t, resp.SponsorSigner, engine.SignerAddress().Hex())
	assert.DeepEqual(t, resp.Chains, []uint64{testChainID})
	// no fee configured: recipient omitted, zero bps reported
	assert.Equal(t, resp.FeeBasisPoints, uint32(0))
	assert.Equal(t, resp.FeeRecipient, "")
}

func TestHandleHealth_ReportsFeeSchedule(t *testing.T) {
	recipient := common.HexToAddress("0x4444444444444444444444444444444444444444")
	fees, err := settlement.NewFeeConfig(50, recipient)
	assert.NoError(t, err)
	mux := newTestRouterWithFees(newTestEngine(t, 3), fees)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, rec.Code, http.StatusOK)

	var resp models.HealthResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, resp.FeeBasisPoints, uint32(50))
	assert.Equal(t, resp.FeeRecipient, recipient.Hex())
}

func TestRejectionToResponse_UntypedError(t *testing.T) {
	status, body := rejectionToResponse(errors.New("boom"))
	assert.Equal(t, status, http.StatusInternalServerError)
	assert.Equal(t, body.Category, string(sponsor.CategoryInfrastructure))
}

type fixedQuoteVenue struct {
	protocol string
	out      *big.Int
}

func (v *fixedQuoteVenue) ProtocolName() string { return v.protocol }

func (v *fixedQuoteVenue) GetQuote(ctx context.Context, in, out common.Address, amountIn *big.Int) (*adapters.Quote, error) {
	return &adapters.Quote{AmountOut: new(big.Int).Set(v.out)}, nil
}

func newTestPlanner(t *testing.T) *planner.Planner {
	t.Helper()
	venue := &fixedQuoteVenue{protocol: "uniswap-v3", out: big.NewInt(95)}
	reg, err := registry.New(map[uint64][]registry.Endpoint{
		testChainID: {{
			Kind:     registry.KindSwap,
			Protocol: venue.protocol,
			Address:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
			URL:      "https://q.example.com/uniswap-v3",
		}},
	}, []uint64{testChainID})
	assert.NoError(t, err)
	scorer := planner.NewScorer(
		planner.FixedValue(decimal.NewFromInt(1)),
		planner.FixedGasPrice(big.NewInt(0)),
		big.NewInt(0),
	)
	return planner.New(reg, map[string]adapters.SwapVenueClient{venue.protocol: venue}, nil, scorer)
}

func TestHandlePlan(t *testing.T) {
	h := newPlanHandler(newTestPlanner(t), nil)
	mux := chi.NewMux()
	mux.Post("/plan", h.handlePlan)

	intent := &models.Intent{
		User:               common.HexToAddress(testWallet),
		TokenIn:            common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		AmountIn:           big.NewInt(100),
		TokenOut:           common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		MinOut:             big.NewInt(90),
		SourceChainID:      testChainID,
		DestinationChainID: testChainID,
		FeeMode:            models.FeeModeSponsored,
	}
	body, err := json.Marshal(intent)
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/plan", bytes.NewReader(body)))
	assert.Equal(t, rec.Code, http.StatusOK)

	var resp PlanResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Candidates), 1)
	assert.Equal(t, resp.Candidates[0].Steps[0].Protocol, "uniswap-v3")

	// an invalid intent is rejected before the planner runs
	intent.MinOut = big.NewInt(0)
	body, err = json.Marshal(intent)
	assert.NoError(t, err)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/plan", bytes.NewReader(body)))
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestNewServer_RoutesMounted(t *testing.T) {
	engine := newTestEngine(t, 3)
	cfg := DefaultServerConfig()
	cfg.OTelConfig = nil
	cfg.EnableMetrics = false

	srv, err := NewServer(context.Background(), cfg, engine, nil, settlement.FeeConfig{}, nil)
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/server/ready", nil))
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/server/health", nil))
	assert.Equal(t, rec.Code, http.StatusOK)

	// no planner configured: /plan is absent
	rec = httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/plan", nil))
	assert.Equal(t, rec.Code, http.StatusNotFound)

	rec = httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sponsor", bytes.NewReader(sponsorBody(t))))
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestHandleSponsor_BodyTooLarge(t *testing.T) {
	mux := newTestRouter(newTestEngine(t, 3))

	payload := bytes.Repeat([]byte("a"), maxSponsorBodyBytes+1)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sponsor", bytes.NewReader(payload)))
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}
