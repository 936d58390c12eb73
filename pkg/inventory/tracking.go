package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TrackingManager handles batch inquiry and stock item audit trails
// バッチ照会と在庫品目の監査証跡を処理
type TrackingManager struct {
	store    Store
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
}

var _ BatchTracker = (*TrackingManager)(nil)

// NewTrackingManager creates a new tracking manager
// 新しい追跡マネージャーを作成
func NewTrackingManager(store Store, logger *zap.Logger, config *Config) *TrackingManager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	location := config.TimeZone
	if location == nil {
		location = time.Local
	}
	return &TrackingManager{
		store:    store,
		logger:   logger,
		now:      now,
		location: location,
	}
}

// GetBatchesByStockItem retrieves all batches of a stock item in FEFO order, including depleted ones
// 在庫品目のすべてのバッチをFEFO順に取得（残数0を含む）
func (tm *TrackingManager) GetBatchesByStockItem(ctx context.Context, stockItemID string) ([]StockBatch, error) {
	var batches []StockBatch
	err := tm.store.WithinReadTx(ctx, func(tx Tx) error {
		if _, err := tx.GetStockItem(ctx, stockItemID); err != nil {
			return err
		}
		var err error
		batches, err = tx.ListBatches(ctx, BatchFilter{StockItemID: stockItemID})
		return err
	})
	if err != nil {
		return nil, err
	}

	SortBatchesFEFO(batches)
	return batches, nil
}

// GetExpiringBatches retrieves batches with remaining stock that expire within daysAhead days
// 指定日数以内に期限切れになる残数ありバッチを取得
func (tm *TrackingManager) GetExpiringBatches(ctx context.Context, daysAhead int) ([]StockBatch, error) {
	if daysAhead <= 0 {
		return nil, NewValidationError("days_ahead", "日数は正の値である必要があります", "")
	}

	now := tm.now().In(tm.location)
	threshold := now.AddDate(0, 0, daysAhead)

	var batches []StockBatch
	err := tm.store.WithinReadTx(ctx, func(tx Tx) error {
		var err error
		batches, err = tx.ListBatches(ctx, BatchFilter{
			AvailableOnly:  true,
			ExpiringAfter:  &now,
			ExpiringBefore: &threshold,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	SortBatchesFEFO(batches)

	tm.logger.Debug("期限間近バッチ検索完了",
		zap.Int("days_ahead", daysAhead),
		zap.Time("threshold", threshold),
		zap.Int("count", len(batches)),
	)

	return batches, nil
}

// GetExpiredBatches retrieves batches with remaining stock that have already expired
// 残数のある期限切れバッチを取得
func (tm *TrackingManager) GetExpiredBatches(ctx context.Context) ([]StockBatch, error) {
	now := tm.now().In(tm.location)

	var batches []StockBatch
	err := tm.store.WithinReadTx(ctx, func(tx Tx) error {
		all, err := tx.ListBatches(ctx, BatchFilter{AvailableOnly: true})
		if err != nil {
			return err
		}
		for _, b := range all {
			if b.IsExpired(now) {
				batches = append(batches, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	SortBatchesFEFO(batches)

	tm.logger.Debug("期限切れバッチ検索完了",
		zap.Time("current_time", now),
		zap.Int("count", len(batches)),
	)

	return batches, nil
}

// GetAuditTrail retrieves the transactions requested in [from, to) and all batches of a stock item
// 在庫品目の監査証跡（期間内のトランザクションとバッチ）を取得
func (tm *TrackingManager) GetAuditTrail(ctx context.Context, stockItemID string, from, to time.Time) (*AuditTrail, error) {
	if !from.Before(to) {
		return nil, NewValidationError("from", "開始日時が終了日時以降になっています", from.String())
	}

	trail := &AuditTrail{
		StockItemID:  stockItemID,
		FromDate:     from,
		ToDate:       to,
		Transactions: make([]StockTransaction, 0),
		Batches:      make([]StockBatch, 0),
	}

	err := tm.store.WithinReadTx(ctx, func(tx Tx) error {
		stockItem, err := tx.GetStockItem(ctx, stockItemID)
		if err != nil {
			return err
		}
		trail.StockItem = stockItem

		transactions, err := tx.ListTransactions(ctx, TransactionFilter{StockItemID: stockItemID})
		if err != nil {
			return err
		}
		for _, t := range transactions {
			if !t.RequestedAt.Before(from) && t.RequestedAt.Before(to) {
				trail.Transactions = append(trail.Transactions, t)
			}
		}

		batches, err := tx.ListBatches(ctx, BatchFilter{StockItemID: stockItemID})
		if err != nil {
			return err
		}
		trail.Batches = append(trail.Batches, batches...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	SortBatchesFEFO(trail.Batches)
	trail.GeneratedAt = tm.now()

	return trail, nil
}

// AuditTrail represents the movement history of one stock item
// 在庫品目の移動履歴を表現
type AuditTrail struct {
	StockItemID  string             `json:"stock_item_id"`
	StockItem    *StockItem         `json:"stock_item"`
	FromDate     time.Time          `json:"from_date"`
	ToDate       time.Time          `json:"to_date"`
	Transactions []StockTransaction `json:"transactions"`
	Batches      []StockBatch       `json:"batches"`
	GeneratedAt  time.Time          `json:"generated_at"`
}
