// Package metrics exposes ledger events as Prometheus collectors
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

const namespace = "stock_ledger"

// Publisher implements inventory.EventPublisher by updating Prometheus collectors
// Prometheusメトリクスを更新するイベント発行者
type Publisher struct {
	logger *zap.Logger

	transactions  *prometheus.CounterVec
	quantityMoved *prometheus.CounterVec
	stockLevel    *prometheus.GaugeVec
	lowStock      *prometheus.CounterVec
	shortfalls    prometheus.Counter
	shortfallQty  prometheus.Counter
}

var _ inventory.EventPublisher = (*Publisher)(nil)

// NewPublisher creates the collectors and registers them with reg
// コレクターを作成しレジストリに登録
func NewPublisher(reg prometheus.Registerer, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Publisher{
		logger: logger,
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Stock transactions by lifecycle event and type.",
		}, []string{"event", "type"}),
		quantityMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quantity_moved_total",
			Help:      "Absolute stock quantity applied to the ledger by direction.",
		}, []string{"direction", "type"}),
		stockLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_item_quantity",
			Help:      "Current quantity of a stock item after its last change.",
		}, []string{"stock_item_id"}),
		lowStock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_alerts_total",
			Help:      "Times a stock item crossed its minimum quantity.",
		}, []string{"stock_item_id"}),
		shortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_shortfalls_total",
			Help:      "Withdrawals that available batches could not fully cover.",
		}),
		shortfallQty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_shortfall_quantity_total",
			Help:      "Quantity left uncovered by batches.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.transactions, p.quantityMoved, p.stockLevel, p.lowStock, p.shortfalls, p.shortfallQty,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// PublishTransactionCreated counts a created transaction
func (p *Publisher) PublishTransactionCreated(ctx context.Context, event inventory.TransactionEvent) error {
	p.transactions.WithLabelValues("created", string(event.Type)).Inc()
	return nil
}

// PublishTransactionApproved counts an approved transaction
func (p *Publisher) PublishTransactionApproved(ctx context.Context, event inventory.TransactionEvent) error {
	p.transactions.WithLabelValues("approved", string(event.Type)).Inc()
	return nil
}

// PublishTransactionRejected counts a rejected transaction
func (p *Publisher) PublishTransactionRejected(ctx context.Context, event inventory.TransactionEvent) error {
	p.transactions.WithLabelValues("rejected", string(event.Type)).Inc()
	return nil
}

// PublishStockChanged records the moved quantity and the new stock level
func (p *Publisher) PublishStockChanged(ctx context.Context, event inventory.StockChangedEvent) error {
	delta := event.NewQuantity.Sub(event.OldQuantity)
	direction := "in"
	if delta.IsNegative() {
		direction = "out"
	}
	moved, _ := delta.Abs().Float64()
	p.quantityMoved.WithLabelValues(direction, string(event.Type)).Add(moved)

	level, _ := event.NewQuantity.Float64()
	p.stockLevel.WithLabelValues(event.StockItemID).Set(level)
	return nil
}

// PublishLowStockAlert counts a low stock crossing
func (p *Publisher) PublishLowStockAlert(ctx context.Context, event inventory.LowStockAlertEvent) error {
	p.lowStock.WithLabelValues(event.StockItemID).Inc()
	p.logger.Warn("低在庫アラート",
		zap.String("stock_item_id", event.StockItemID),
		zap.String("current_qty", event.CurrentQty.String()),
		zap.String("min_quantity", event.MinQuantity.String()),
	)
	return nil
}

// PublishBatchShortfall counts an uncovered withdrawal
func (p *Publisher) PublishBatchShortfall(ctx context.Context, event inventory.BatchShortfallEvent) error {
	p.shortfalls.Inc()
	qty, _ := event.Shortfall.Float64()
	p.shortfallQty.Add(qty)
	return nil
}
