package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storePoolConns, storePoolEmptyAcquires) }

var (
	storePoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "license_store_pool_connections",
			Help: "Postgres pool connections backing the license store, by state.",
		},
		[]string{"state"}, // 'max', 'total', 'idle', 'in_use'
	)

	storePoolEmptyAcquires = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "license_store_pool_empty_acquires",
			Help: "Cumulative acquires that had to wait for a connection.",
		},
	)
)

// PoolSnapshot is one reading of the store's connection pool.
type PoolSnapshot struct {
	Max, Total, Idle, InUse int32
	EmptyAcquires           int64
}

func SetStorePool(s PoolSnapshot) {
	storePoolConns.WithLabelValues("max").Set(float64(s.Max))
	storePoolConns.WithLabelValues("total").Set(float64(s.Total))
	storePoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	storePoolConns.WithLabelValues("in_use").Set(float64(s.InUse))
	storePoolEmptyAcquires.Set(float64(s.EmptyAcquires))
}
