// Package metrics exposes the relayer's per-chain counters as Prometheus
// gauges, scraped over the admin HTTP server's /metrics endpoint.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domain "txrelayer/internal/types"
)

var (
	PendingTxs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "txrelayer",
		Name:      "pending_transactions",
		Help:      "Transactions admitted but not yet finalized on chain.",
	}, []string{"chain_id"})

	MinedTxs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "txrelayer",
		Name:      "mined_transactions",
		Help:      "Transactions with an attempt included in a mined block.",
	}, []string{"chain_id"})

	FinalizedTxs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "txrelayer",
		Name:      "finalized_transactions",
		Help:      "Transactions with an attempt past the finality depth.",
	}, []string{"chain_id"})

	IndexedBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "txrelayer",
		Name:      "indexed_blocks_total",
		Help:      "Blocks recorded by the indexer.",
	}, []string{"chain_id"})

	BlockTxs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "txrelayer",
		Name:      "block_transactions_total",
		Help:      "Transaction-to-block associations recorded by the indexer.",
	}, []string{"chain_id"})
)

// Observe publishes one chain's Stats snapshot to the gauges above.
func Observe(stats domain.Stats) {
	chainID := strconv.FormatUint(stats.ChainID, 10)

	PendingTxs.WithLabelValues(chainID).Set(float64(stats.PendingTxs))
	MinedTxs.WithLabelValues(chainID).Set(float64(stats.MinedTxs))
	FinalizedTxs.WithLabelValues(chainID).Set(float64(stats.FinalizedTxs))
	IndexedBlocks.WithLabelValues(chainID).Set(float64(stats.TotalIndexedBlocks))
	BlockTxs.WithLabelValues(chainID).Set(float64(stats.BlockTxs))
}
