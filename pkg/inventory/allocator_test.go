package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBatches() []StockBatch {
	soon := fixedNow.AddDate(0, 0, 1)
	later := fixedNow.AddDate(0, 0, 5)
	return []StockBatch{
		{ID: "B3", StockItemID: "si-1", CurrentQuantity: dec(5), InitialQuantity: dec(5), UnitCost: dec(30), CreatedAt: fixedNow.Add(-3 * time.Hour)},
		{ID: "B2", StockItemID: "si-1", ExpiryDate: &later, CurrentQuantity: dec(20), InitialQuantity: dec(20), UnitCost: dec(20), CreatedAt: fixedNow.Add(-2 * time.Hour)},
		{ID: "B1", StockItemID: "si-1", ExpiryDate: &soon, CurrentQuantity: dec(10), InitialQuantity: dec(10), UnitCost: dec(10), CreatedAt: fixedNow.Add(-1 * time.Hour)},
	}
}

// TestPlanAllocation_FEFO は有効期限の早いバッチから引当されることを確認
func TestPlanAllocation_FEFO(t *testing.T) {
	plan := PlanAllocation(testBatches(), dec(15))

	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, "B1", plan.Allocations[0].BatchID)
	assert.True(t, plan.Allocations[0].Quantity.Equal(dec(10)))
	assert.Equal(t, "B2", plan.Allocations[1].BatchID)
	assert.True(t, plan.Allocations[1].Quantity.Equal(dec(5)))
	assert.True(t, plan.Allocated.Equal(dec(15)))
	assert.True(t, plan.Shortfall.IsZero())
	assert.True(t, plan.Cost().Equal(dec(200)), "10×10 + 5×20")
}

// TestPlanAllocation_Shortfall はバッチ合計を超える要求で不足分が残ることを確認
func TestPlanAllocation_Shortfall(t *testing.T) {
	plan := PlanAllocation(testBatches(), dec(40))

	require.Len(t, plan.Allocations, 3)
	assert.Equal(t, "B3", plan.Allocations[2].BatchID, "期限なしバッチは最後")
	assert.True(t, plan.Allocated.Equal(dec(35)))
	assert.True(t, plan.Shortfall.Equal(dec(5)))
}

func TestPlanAllocation_SkipsEmptyBatches(t *testing.T) {
	batches := testBatches()
	batches[2].CurrentQuantity = decimal.Zero // B1

	plan := PlanAllocation(batches, dec(3))

	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "B2", plan.Allocations[0].BatchID)
}

// TestSortBatchesFEFO_Ties は同一期限のバッチが入庫順に並ぶことを確認
func TestSortBatchesFEFO_Ties(t *testing.T) {
	expiry := fixedNow.AddDate(0, 0, 3)
	batches := []StockBatch{
		{ID: "late", ExpiryDate: &expiry, CreatedAt: fixedNow},
		{ID: "none", CreatedAt: fixedNow.Add(-time.Hour)},
		{ID: "b", ExpiryDate: &expiry, CreatedAt: fixedNow.Add(-time.Hour)},
		{ID: "a", ExpiryDate: &expiry, CreatedAt: fixedNow.Add(-time.Hour)},
	}

	SortBatchesFEFO(batches)

	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"a", "b", "late", "none"}, ids)
}

// TestSortBatchesFEFO_InsertionOrder は作成日時が同じバッチを登録順に並べることを確認
func TestSortBatchesFEFO_InsertionOrder(t *testing.T) {
	batches := []StockBatch{
		{ID: "0a", Seq: 3, CreatedAt: fixedNow},
		{ID: "ff", Seq: 1, CreatedAt: fixedNow},
		{ID: "7c", Seq: 2, CreatedAt: fixedNow},
	}

	SortBatchesFEFO(batches)

	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"ff", "7c", "0a"}, ids)
}

// TestAllocator_RejectPolicy は不足時にバッチを変更せずエラーを返すことを確認
func TestAllocator_RejectPolicy(t *testing.T) {
	tx := new(MockTx)
	tx.On("ListAvailableBatches", mock.Anything, "si-1").Return(testBatches(), nil)
	allocator := NewAllocator(ShortfallPolicyReject, zap.NewNop())

	plan, err := allocator.Allocate(context.Background(), tx, "si-1", dec(36), fixedNow)

	assert.ErrorIs(t, err, ErrInsufficientStock)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.Available.Equal(dec(35)))
	assert.True(t, plan.Shortfall.Equal(dec(1)))
	tx.AssertNotCalled(t, "DecrementBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestAllocator_PartialPolicy は不足があっても引当可能分を減算することを確認
func TestAllocator_PartialPolicy(t *testing.T) {
	tx := new(MockTx)
	tx.On("ListAvailableBatches", mock.Anything, "si-1").Return(testBatches(), nil)
	tx.On("DecrementBatch", mock.Anything, mock.AnythingOfType("string"), mock.Anything, fixedNow).Return(nil)
	allocator := NewAllocator("", nil)

	plan, err := allocator.Allocate(context.Background(), tx, "si-1", dec(36), fixedNow)

	require.NoError(t, err)
	assert.True(t, plan.Shortfall.Equal(dec(1)))
	tx.AssertNumberOfCalls(t, "DecrementBatch", 3)
}

// TestAllocator_DecrementConflict はバッチ減算の競合がそのまま返ることを確認
func TestAllocator_DecrementConflict(t *testing.T) {
	conflict := NewConcurrencyError("decrement_batch", "B1", "残数が変更されました")
	tx := new(MockTx)
	tx.On("ListAvailableBatches", mock.Anything, "si-1").Return(testBatches(), nil)
	tx.On("DecrementBatch", mock.Anything, "B1", mock.Anything, fixedNow).Return(conflict)
	allocator := NewAllocator(ShortfallPolicyPartial, zap.NewNop())

	_, err := allocator.Allocate(context.Background(), tx, "si-1", dec(5), fixedNow)

	var concurrencyErr *ConcurrencyError
	assert.ErrorAs(t, err, &concurrencyErr)
}

func TestWeightedAverageCost(t *testing.T) {
	tests := []struct {
		name                   string
		qty, avg, inQty, inCst int64
		want                   int64
	}{
		{"同数量", 10, 100, 10, 200, 150},
		{"在庫なし", 0, 100, 5, 80, 80},
		{"マイナス在庫", -5, 100, 5, 80, 80},
		{"加重", 30, 10, 10, 50, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverageCost(dec(tt.qty), dec(tt.avg), dec(tt.inQty), dec(tt.inCst))
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}
