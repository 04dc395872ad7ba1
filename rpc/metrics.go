package rpc

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kinetic-Labs/kinetic-relay/pipeline"
	"github.com/Kinetic-Labs/kinetic-relay/sponsor"
)

// Metrics holds the domain counters exposed at /server/metrics. It doubles
// as the policy engine's audit sink so every grant and rejection is counted
// without the engine knowing about Prometheus.
type Metrics struct {
	sponsorshipsGranted  *prometheus.CounterVec
	sponsorshipsRejected *prometheus.CounterVec
	plansExecuted        *prometheus.CounterVec
	pipelineTerminal     *prometheus.CounterVec
}

// NewMetrics registers the relay's domain counters with the given registerer.
// Pass prometheus.DefaultRegisterer to serve them from the default handler.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sponsorshipsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinetic_relay",
			Name:      "sponsorships_granted_total",
			Help:      "Sponsorship authorizations signed, by chain.",
		}, []string{"chain_id"}),
		sponsorshipsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinetic_relay",
			Name:      "sponsorships_rejected_total",
			Help:      "Sponsorship requests rejected, by category.",
		}, []string{"category"}),
		plansExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinetic_relay",
			Name:      "route_plans_total",
			Help:      "Route planning invocations, by outcome.",
		}, []string{"outcome"}),
		pipelineTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinetic_relay",
			Name:      "pipeline_terminal_total",
			Help:      "Submission pipelines reaching a terminal state.",
		}, []string{"state"}),
	}

	collectors := []prometheus.Collector{
		m.sponsorshipsGranted,
		m.sponsorshipsRejected,
		m.plansExecuted,
		m.pipelineTerminal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SponsorshipGranted implements sponsor.AuditSink.
func (m *Metrics) SponsorshipGranted(sender common.Address, hash common.Hash, chainID uint64, remaining sponsor.Remaining) {
	m.sponsorshipsGranted.WithLabelValues(strconv.FormatUint(chainID, 10)).Inc()
}

// SponsorshipRejected implements sponsor.AuditSink.
func (m *Metrics) SponsorshipRejected(sender common.Address, chainID uint64, category sponsor.Category) {
	m.sponsorshipsRejected.WithLabelValues(string(category)).Inc()
}

// PlanExecuted records a planner invocation. Outcome is "ok" when at least
// one candidate survived, "empty" otherwise.
func (m *Metrics) PlanExecuted(candidates int) {
	outcome := "ok"
	if candidates == 0 {
		outcome = "empty"
	}
	m.plansExecuted.WithLabelValues(outcome).Inc()
}

// PipelineObserver returns a transition hook for pipeline.Config that counts
// terminal states. Non-terminal transitions are ignored.
func (m *Metrics) PipelineObserver() func(from, to pipeline.State) {
	return func(from, to pipeline.State) {
		if to.Terminal() {
			m.pipelineTerminal.WithLabelValues(string(to)).Inc()
		}
	}
}
