package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AverageCostMethod defines how a RECEIVE updates a stock item's average cost
// 入庫時の平均原価の更新方法を定義
type AverageCostMethod string

const (
	// AverageCostLastReceipt overwrites averageCost with the received unit cost
	AverageCostLastReceipt AverageCostMethod = "last_receipt" // 最終仕入単価で上書き
	// AverageCostWeighted keeps a moving weighted average
	AverageCostWeighted AverageCostMethod = "weighted" // 移動平均法
)

// IsValid reports whether c is a known method
func (c AverageCostMethod) IsValid() bool {
	return c == AverageCostLastReceipt || c == AverageCostWeighted
}

// WeightedAverageCost computes ((qty*avg)+(inQty*inCost))/(qty+inQty).
// A non-positive resulting quantity yields the incoming cost.
// 移動平均原価を計算
func WeightedAverageCost(qty, avg, inQty, inCost decimal.Decimal) decimal.Decimal {
	sum := qty.Add(inQty)
	if !sum.IsPositive() || !qty.IsPositive() {
		return inCost
	}
	return qty.Mul(avg).Add(inQty.Mul(inCost)).Div(sum)
}

// applyLedgerEffects moves stock for every line of an approved transaction
// 承認済みトランザクションの明細を在庫に反映
func (m *Manager) applyLedgerEffects(ctx context.Context, tx Tx, t *StockTransaction, at time.Time, rec *effectRecorder) error {
	direction := decimal.NewFromInt(int64(t.Type.Direction()))

	for i := range t.Items {
		line := &t.Items[i]

		stockItem, err := tx.LockStockItem(ctx, line.StockItemID)
		if err != nil {
			return err
		}

		change := StockChange{
			StockItemID:    line.StockItemID,
			QuantityChange: line.Quantity.Mul(direction),
			At:             at,
		}
		if line.UnitCost != nil {
			change.LastCost = line.UnitCost
			if t.Type == TransactionTypeReceive {
				change.AverageCost = decimalPtr(m.nextAverageCost(stockItem, line.Quantity, *line.UnitCost))
			}
		}

		if err := tx.ApplyStockChange(ctx, change); err != nil {
			return err
		}

		oldQty := stockItem.CurrentQuantity
		newQty := oldQty.Add(change.QuantityChange)
		rec.stockChanged(StockChangedEvent{
			StockItemID:       stockItem.ID,
			TransactionID:     t.ID,
			TransactionNumber: t.TransactionNumber,
			Type:              t.Type,
			OldQuantity:       oldQty,
			NewQuantity:       newQty,
			Timestamp:         at,
		})
		if stockItem.MinQuantity != nil && newQty.LessThanOrEqual(*stockItem.MinQuantity) && oldQty.GreaterThan(*stockItem.MinQuantity) {
			rec.lowStock(LowStockAlertEvent{
				StockItemID: stockItem.ID,
				CurrentQty:  newQty,
				MinQuantity: *stockItem.MinQuantity,
				Timestamp:   at,
			})
		}

		switch t.Type {
		case TransactionTypeReceive:
			unitCost := decimal.Zero
			if line.UnitCost != nil {
				unitCost = *line.UnitCost
			}
			batch := &StockBatch{
				ID:              NewID(),
				StockItemID:     line.StockItemID,
				BatchNumber:     line.BatchNumber,
				ExpiryDate:      line.ExpiryDate,
				ManufactureDate: line.ManufactureDate,
				InitialQuantity: line.Quantity,
				CurrentQuantity: line.Quantity,
				UnitCost:        unitCost,
				TransactionID:   t.ID,
				CreatedAt:       at,
				UpdatedAt:       at,
			}
			if err := tx.CreateBatch(ctx, batch); err != nil {
				return err
			}

		case TransactionTypeWithdraw:
			plan, err := m.allocator.Allocate(ctx, tx, line.StockItemID, line.Quantity, at)
			if err != nil {
				return err
			}
			if plan.Shortfall.IsPositive() {
				rec.shortfall(BatchShortfallEvent{
					StockItemID:   line.StockItemID,
					TransactionID: t.ID,
					Requested:     line.Quantity,
					Shortfall:     plan.Shortfall,
					Timestamp:     at,
				})
			}
		}

		m.logger.Debug("在庫反映完了",
			zap.String("transaction_number", t.TransactionNumber),
			zap.String("stock_item_id", line.StockItemID),
			zap.String("quantity_change", change.QuantityChange.String()),
			zap.String("new_quantity", newQty.String()),
		)
	}

	return nil
}

func (m *Manager) nextAverageCost(stockItem *StockItem, inQty, inCost decimal.Decimal) decimal.Decimal {
	if m.config.AverageCostMethod != AverageCostWeighted || stockItem.AverageCost == nil {
		return inCost
	}
	return WeightedAverageCost(stockItem.CurrentQuantity, *stockItem.AverageCost, inQty, inCost)
}

// effectRecorder collects events during a unit of work so they are published only after commit
type effectRecorder struct {
	changes    []StockChangedEvent
	lowStocks  []LowStockAlertEvent
	shortfalls []BatchShortfallEvent
}

func (r *effectRecorder) stockChanged(e StockChangedEvent) {
	if r != nil {
		r.changes = append(r.changes, e)
	}
}

func (r *effectRecorder) lowStock(e LowStockAlertEvent) {
	if r != nil {
		r.lowStocks = append(r.lowStocks, e)
	}
}

func (r *effectRecorder) shortfall(e BatchShortfallEvent) {
	if r != nil {
		r.shortfalls = append(r.shortfalls, e)
	}
}

type transactionEventKind int

const (
	eventCreated transactionEventKind = iota
	eventApproved
	eventRejected
)

// publishTransactionEvent publishes a status event; failures are logged, never returned
// トランザクションイベントを発行（失敗はログのみ）
func (m *Manager) publishTransactionEvent(ctx context.Context, t *StockTransaction, userID string, kind transactionEventKind) {
	if m.publisher == nil {
		return
	}

	event := TransactionEvent{
		TransactionID:     t.ID,
		TransactionNumber: t.TransactionNumber,
		Type:              t.Type,
		Status:            t.Status,
		TotalValue:        t.TotalValue(),
		ItemCount:         len(t.Items),
		Timestamp:         m.now(),
		UserID:            userID,
	}

	var err error
	switch kind {
	case eventCreated:
		err = m.publisher.PublishTransactionCreated(ctx, event)
	case eventApproved:
		err = m.publisher.PublishTransactionApproved(ctx, event)
	case eventRejected:
		err = m.publisher.PublishTransactionRejected(ctx, event)
	}
	if err != nil {
		m.logger.Error("イベント発行に失敗しました", zap.String("transaction_id", t.ID), zap.Error(err))
	}
}

func (m *Manager) publishEffects(ctx context.Context, rec *effectRecorder) {
	if m.publisher == nil || rec == nil {
		return
	}
	for _, e := range rec.changes {
		if err := m.publisher.PublishStockChanged(ctx, e); err != nil {
			m.logger.Error("在庫変更イベント発行に失敗しました", zap.Error(err))
		}
	}
	for _, e := range rec.lowStocks {
		if err := m.publisher.PublishLowStockAlert(ctx, e); err != nil {
			m.logger.Error("低在庫アラートイベント発行に失敗しました", zap.Error(err))
		}
	}
	for _, e := range rec.shortfalls {
		if err := m.publisher.PublishBatchShortfall(ctx, e); err != nil {
			m.logger.Error("バッチ不足イベント発行に失敗しました", zap.Error(err))
		}
	}
}
