// Package promhooks exports region statistics as Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/regioncache/hooks"
)

const namespace = "regioncache"

// Hooks counts region events. Storage keys are never used as label values;
// only region names and fixed reasons are.
type Hooks struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	puts            *prometheus.CounterVec
	putRejected     *prometheus.CounterVec
	selfHeal        *prometheus.CounterVec
	setRejected     prometheus.Counter
	epochErrors     *prometheus.CounterVec
	regionsBuilt    *prometheus.CounterVec
	softLockUnknown *prometheus.CounterVec
}

var _ hooks.Hooks = (*Hooks)(nil)

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Cache reads served from a region.",
		}, []string{"region"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Cache reads that found nothing usable in a region.",
		}, []string{"region"}),
		puts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puts_total",
			Help:      "Items written into a region by an access strategy.",
		}, []string{"region"}),
		putRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "put_rejected_total",
			Help:      "Writes declined by an access strategy.",
		}, []string{"region", "reason"}),
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heal_total",
			Help:      "Entries deleted on read because they were corrupt or from an old epoch.",
		}, []string{"reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_set_rejected_total",
			Help:      "Writes refused by the storage provider.",
		}),
		epochErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epoch_errors_total",
			Help:      "Region epoch read or bump failures.",
		}, []string{"region"}),
		regionsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_built_total",
			Help:      "Regions built by the region factory.",
		}, []string{"kind"}),
		softLockUnknown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soft_lock_unknown_total",
			Help:      "Soft lock releases the lock table did not recognise.",
		}, []string{"region"}),
	}
	for _, c := range []prometheus.Collector{
		h.hits, h.misses, h.puts, h.putRejected, h.selfHeal,
		h.setRejected, h.epochErrors, h.regionsBuilt, h.softLockUnknown,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHealEntry(_, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)     { h.setRejected.Inc() }
func (h *Hooks) EpochError(region string, _ error) {
	h.epochErrors.WithLabelValues(region).Inc()
}
func (h *Hooks) RegionBuilt(_, kind string) { h.regionsBuilt.WithLabelValues(kind).Inc() }
func (h *Hooks) Hit(region string)          { h.hits.WithLabelValues(region).Inc() }
func (h *Hooks) Miss(region string)         { h.misses.WithLabelValues(region).Inc() }
func (h *Hooks) Put(region string)          { h.puts.WithLabelValues(region).Inc() }
func (h *Hooks) PutRejected(region, reason string) {
	h.putRejected.WithLabelValues(region, reason).Inc()
}
func (h *Hooks) SoftLockUnknown(region string) { h.softLockUnknown.WithLabelValues(region).Inc() }
