// Package metrics exposes Prometheus counters for the payment flow.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the services report into.
type Recorder interface {
	TokenIssued(brand string)
	TokenRejected(reason string)
	ThreeDSOutcome(outcome string)
	PaymentOutcome(result string)
	RateLimited(route string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) TokenIssued(string)    {}
func (Nop) TokenRejected(string)  {}
func (Nop) ThreeDSOutcome(string) {}
func (Nop) PaymentOutcome(string) {}
func (Nop) RateLimited(string)    {}

type Collector struct {
	tokensIssued   *prometheus.CounterVec
	tokensRejected *prometheus.CounterVec
	threeDS        *prometheus.CounterVec
	payments       *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_card_tokens_issued_total",
			Help: "Card tokens issued, by brand.",
		}, []string{"brand"}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_card_tokens_rejected_total",
			Help: "Tokenization requests rejected by validation, by reason.",
		}, []string{"reason"}),
		threeDS: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_threeds_sessions_total",
			Help: "3-D Secure session events, by outcome.",
		}, []string{"outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_charges_total",
			Help: "Charge attempts, by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.tokensIssued,
		c.tokensRejected,
		c.threeDS,
		c.payments,
		c.rateLimited,
	)
	return c
}

func (c *Collector) TokenIssued(brand string)      { c.tokensIssued.WithLabelValues(brand).Inc() }
func (c *Collector) TokenRejected(reason string)   { c.tokensRejected.WithLabelValues(reason).Inc() }
func (c *Collector) ThreeDSOutcome(outcome string) { c.threeDS.WithLabelValues(outcome).Inc() }
func (c *Collector) PaymentOutcome(result string)  { c.payments.WithLabelValues(result).Inc() }
func (c *Collector) RateLimited(route string)      { c.rateLimited.WithLabelValues(route).Inc() }

// RegisterStoreSize publishes a gauge sampled from size on every scrape.
func RegisterStoreSize(reg prometheus.Registerer, store string, size func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "payments_store_entries",
		Help:        "Entries currently held by an in-memory store.",
		ConstLabels: prometheus.Labels{"store": store},
	}, func() float64 {
		return float64(size())
	}))
}

// DepthFunc reports the pending, delayed and failed job counts of a queue.
type DepthFunc func(ctx context.Context) (pending, delayed, failed int64, err error)

const depthTimeout = 2 * time.Second

type queueDepth struct {
	desc  *prometheus.Desc
	depth DepthFunc
}

// RegisterQueueDepth publishes the lengths of a job queue, sampled on every
// scrape. A scrape that cannot reach the queue reports nothing for it.
func RegisterQueueDepth(reg prometheus.Registerer, queue string, depth DepthFunc) {
	reg.MustRegister(&queueDepth{
		desc: prometheus.NewDesc("payments_queue_jobs", "Jobs waiting in a queue by state.",
			[]string{"state"}, prometheus.Labels{"queue": queue}),
		depth: depth,
	})
}

func (q *queueDepth) Describe(ch chan<- *prometheus.Desc) {
	ch <- q.desc
}

func (q *queueDepth) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), depthTimeout)
	defer cancel()

	pending, delayed, failed, err := q.depth(ctx)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(q.desc, prometheus.GaugeValue, float64(pending), "pending")
	ch <- prometheus.MustNewConstMetric(q.desc, prometheus.GaugeValue, float64(delayed), "delayed")
	ch <- prometheus.MustNewConstMetric(q.desc, prometheus.GaugeValue, float64(failed), "failed")
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
