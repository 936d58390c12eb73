package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ShortfallPolicy decides what happens when batches cannot cover a withdrawal
// バッチ残数不足時の扱いを定義
type ShortfallPolicy string

const (
	// ShortfallPolicyPartial deducts whatever the batches hold and leaves the rest uncovered
	ShortfallPolicyPartial ShortfallPolicy = "partial" // 不足分は引当せず続行
	// ShortfallPolicyReject fails the whole unit of work with ErrInsufficientStock
	ShortfallPolicyReject ShortfallPolicy = "reject" // 不足時はエラー
)

// IsValid reports whether p is a known policy
func (p ShortfallPolicy) IsValid() bool {
	return p == ShortfallPolicyPartial || p == ShortfallPolicyReject
}

// BatchAllocation is the quantity taken from one batch
// 1バッチからの引当数量
type BatchAllocation struct {
	BatchID     string          `json:"batch_id"`
	BatchNumber *string         `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// AllocationPlan is the outcome of walking the FEFO-ordered batches
// FEFO順に引当した結果
type AllocationPlan struct {
	Requested   decimal.Decimal   `json:"requested"`
	Allocated   decimal.Decimal   `json:"allocated"`
	Shortfall   decimal.Decimal   `json:"shortfall"`
	Allocations []BatchAllocation `json:"allocations"`
}

// Cost returns the batch cost of the allocated quantity
func (p AllocationPlan) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Quantity.Mul(a.UnitCost))
	}
	return total
}

// SortBatchesFEFO orders batches first-expiry-first-out (no expiry last),
// breaking ties first-in-first-out by creation time, then by store insertion order.
// 有効期限の早い順（期限なしは最後）、同一期限は入庫順に並べ替え
func SortBatchesFEFO(batches []StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
}

// PlanAllocation walks batches in FEFO order taking min(remaining, batch qty) from each.
// batches is sorted in place.
// FEFO順にバッチを走査し引当計画を作成
func PlanAllocation(batches []StockBatch, requested decimal.Decimal) AllocationPlan {
	plan := AllocationPlan{
		Requested:   requested,
		Allocated:   decimal.Zero,
		Allocations: make([]BatchAllocation, 0),
	}

	SortBatchesFEFO(batches)

	remaining := requested
	for _, batch := range batches {
		if !remaining.IsPositive() {
			break
		}
		if !batch.CurrentQuantity.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, batch.CurrentQuantity)
		plan.Allocations = append(plan.Allocations, BatchAllocation{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Quantity:    take,
			UnitCost:    batch.UnitCost,
		})
		plan.Allocated = plan.Allocated.Add(take)
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		plan.Shortfall = remaining
	} else {
		plan.Shortfall = decimal.Zero
	}
	return plan
}

// Allocator deducts withdrawals from a stock item's batches
// 出庫数量をバッチから引き当てる
type Allocator struct {
	policy ShortfallPolicy
	logger *zap.Logger
}

// NewAllocator creates a new batch allocator
// 新しいバッチ引当器を作成
func NewAllocator(policy ShortfallPolicy, logger *zap.Logger) *Allocator {
	if !policy.IsValid() {
		policy = ShortfallPolicyPartial
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{policy: policy, logger: logger}
}

// Allocate deducts qty from the stock item's available batches inside tx.
// Under ShortfallPolicyPartial an uncovered remainder is returned in the plan
// and not treated as an error.
// 作業単位内でバッチから数量を引当
func (a *Allocator) Allocate(ctx context.Context, tx Tx, stockItemID string, qty decimal.Decimal, at time.Time) (AllocationPlan, error) {
	batches, err := tx.ListAvailableBatches(ctx, stockItemID)
	if err != nil {
		return AllocationPlan{}, err
	}

	plan := PlanAllocation(batches, qty)
	if plan.Shortfall.IsPositive() && a.policy == ShortfallPolicyReject {
		a.logger.Warn("バッチ残数不足のため出庫を拒否しました",
			zap.String("stock_item_id", stockItemID),
			zap.String("requested", qty.String()),
			zap.String("available", plan.Allocated.String()),
		)
		return plan, NewInsufficientStockError(stockItemID, qty, plan.Allocated)
	}

	for _, alloc := range plan.Allocations {
		if err := tx.DecrementBatch(ctx, alloc.BatchID, alloc.Quantity, at); err != nil {
			return plan, err
		}
	}

	if plan.Shortfall.IsPositive() {
		a.logger.Warn("バッチ残数が不足しています。不足分は引当されません",
			zap.String("stock_item_id", stockItemID),
			zap.String("requested", qty.String()),
			zap.String("shortfall", plan.Shortfall.String()),
		)
	}

	a.logger.Debug("バッチ引当完了",
		zap.String("stock_item_id", stockItemID),
		zap.String("allocated", plan.Allocated.String()),
		zap.Int("batches", len(plan.Allocations)),
	)

	return plan, nil
}

// InsufficientStockError carries the numbers behind ErrInsufficientStock
// 在庫不足の詳細
type InsufficientStockError struct {
	StockItemID string          `json:"stock_item_id"`
	Requested   decimal.Decimal `json:"requested"`
	Available   decimal.Decimal `json:"available"`
}

func (e InsufficientStockError) Error() string {
	return ErrInsufficientStock.Error() + " (在庫品目: " + e.StockItemID + ", 要求: " + e.Requested.String() + ", 引当可能: " + e.Available.String() + ")"
}

func (e InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NewInsufficientStockError creates a new insufficient stock error
func NewInsufficientStockError(stockItemID string, requested, available decimal.Decimal) *InsufficientStockError {
	return &InsufficientStockError{
		StockItemID: stockItemID,
		Requested:   requested,
		Available:   available,
	}
}
