package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// KPIAggregator derives dashboard counters from current ledger state.
// Nothing is cached; every call reads the store.
// 現在の台帳状態から在庫KPIを集計
type KPIAggregator struct {
	store        Store
	logger       *zap.Logger
	now          func() time.Time
	location     *time.Location
	expiringDays int
	tracker      *TrackingManager
}

// NewKPIAggregator creates a new KPI aggregator
// 新しいKPI集計器を作成
func NewKPIAggregator(store Store, logger *zap.Logger, config *Config) *KPIAggregator {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &KPIAggregator{
		store:        store,
		logger:       logger,
		now:          config.Now,
		location:     config.TimeZone,
		expiringDays: config.ExpiringSoonDays,
		tracker:      NewTrackingManager(store, logger, config),
	}
	if k.now == nil {
		k.now = defaults.Now
	}
	if k.location == nil {
		k.location = defaults.TimeZone
	}
	if k.expiringDays <= 0 {
		k.expiringDays = defaults.ExpiringSoonDays
	}
	return k
}

// Summary computes the KPI summary from one consistent read
// 一貫した読み取りでKPIサマリーを計算
func (k *KPIAggregator) Summary(ctx context.Context) (*KPISummary, error) {
	now := k.now().In(k.location)
	summary := &KPISummary{
		TotalValue:     decimal.Zero,
		TodayReceived:  decimal.Zero,
		TodayWithdrawn: decimal.Zero,
		GeneratedAt:    now,
	}

	err := k.store.WithinReadTx(ctx, func(tx Tx) error {
		stockItems, err := tx.ListStockItems(ctx, StockItemFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		summary.TotalItems = len(stockItems)
		for i := range stockItems {
			summary.TotalValue = summary.TotalValue.Add(stockItems[i].Value())
			if stockItems[i].IsLowStock() {
				summary.LowStockCount++
			}
		}

		threshold := now.AddDate(0, 0, k.expiringDays)
		expiring, err := tx.ListBatches(ctx, BatchFilter{
			AvailableOnly:  true,
			ExpiringAfter:  &now,
			ExpiringBefore: &threshold,
		})
		if err != nil {
			return err
		}
		summary.ExpiringSoonCount = len(expiring)

		pending, err := tx.ListTransactions(ctx, TransactionFilter{Status: TransactionStatusPending})
		if err != nil {
			return err
		}
		summary.PendingTransactionCount = len(pending)

		dayStart := StartOfDay(now, k.location)
		dayEnd := dayStart.AddDate(0, 0, 1)
		approved, err := tx.ListTransactions(ctx, TransactionFilter{
			Status:       TransactionStatusApproved,
			ApprovedFrom: &dayStart,
			ApprovedTo:   &dayEnd,
		})
		if err != nil {
			return err
		}
		for _, t := range approved {
			switch t.Type {
			case TransactionTypeReceive:
				summary.TodayReceived = summary.TodayReceived.Add(sumQuantities(t.Items))
			case TransactionTypeWithdraw:
				summary.TodayWithdrawn = summary.TodayWithdrawn.Add(sumQuantities(t.Items))
			}
		}
		return nil
	})
	if err != nil {
		k.logger.Error("KPI集計に失敗しました", zap.Error(err))
		return nil, err
	}

	k.logger.Debug("KPI集計完了",
		zap.Int("total_items", summary.TotalItems),
		zap.String("total_value", summary.TotalValue.String()),
		zap.Int("low_stock_count", summary.LowStockCount),
		zap.Int("expiring_soon_count", summary.ExpiringSoonCount),
		zap.Int("pending_transaction_count", summary.PendingTransactionCount),
	)

	return summary, nil
}

// GetLowStockItems lists active stock items at or below their minimum quantity
// 最小在庫数以下のアクティブな在庫品目を取得
func (k *KPIAggregator) GetLowStockItems(ctx context.Context) ([]StockItem, error) {
	var lowStock []StockItem
	err := k.store.WithinReadTx(ctx, func(tx Tx) error {
		stockItems, err := tx.ListStockItems(ctx, StockItemFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		for _, s := range stockItems {
			if s.IsLowStock() {
				lowStock = append(lowStock, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(lowStock, func(i, j int) bool {
		return lowStock[i].CurrentQuantity.LessThan(lowStock[j].CurrentQuantity)
	})
	return lowStock, nil
}

// GetExpiringBatches lists batches with remaining stock expiring within daysAhead days;
// a non-positive daysAhead uses the configured window
// 指定日数以内に期限切れになるバッチを取得
func (k *KPIAggregator) GetExpiringBatches(ctx context.Context, daysAhead int) ([]StockBatch, error) {
	if daysAhead <= 0 {
		daysAhead = k.expiringDays
	}
	return k.tracker.GetExpiringBatches(ctx, daysAhead)
}

// BatchValue sums remaining batch quantity × batch unit cost over active stock items
// バッチ原価ベースの在庫金額合計
func (k *KPIAggregator) BatchValue(ctx context.Context) (decimal.Decimal, error) {
	report, err := NewValuationEngine(k.store, k.logger).Report(ctx, "")
	if err != nil {
		return decimal.Zero, err
	}
	return report.TotalBatchValue, nil
}

func sumQuantities(items []StockTransactionItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity)
	}
	return total
}
