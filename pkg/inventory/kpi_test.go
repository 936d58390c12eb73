package inventory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

// TestKPI_LowStockBoundary は最小在庫数ちょうどが低在庫として数えられることを確認
func TestKPI_LowStockBoundary(t *testing.T) {
	f := newFixture(t, nil)
	atMin := f.newStockItem(t, "ITEM-001", decPtr(10))
	aboveMin := f.newStockItem(t, "ITEM-002", decPtr(10))
	f.newStockItem(t, "ITEM-003", nil)
	f.receive(t, atMin.ID, receiveLine{qty: 10})
	f.receive(t, aboveMin.ID, receiveLine{qty: 11})

	summary, err := f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 1, summary.LowStockCount)

	low, err := f.kpi.GetLowStockItems(f.ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, atMin.ID, low[0].ID)

	require.NoError(t, f.manager.DeactivateStockItem(f.ctx, atMin.ID))
	summary, err = f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalItems, "無効化された品目は数えない")
	assert.Equal(t, 0, summary.LowStockCount)
}

// TestKPI_TotalValue は在庫金額が数量×平均原価の合計であることを確認
func TestKPI_TotalValue(t *testing.T) {
	f := newFixture(t, nil)
	costed := f.newStockItem(t, "ITEM-001", nil)
	uncosted := f.newStockItem(t, "ITEM-002", nil)
	f.receive(t, costed.ID, receiveLine{qty: 1, cost: decPtr(50)})
	f.receive(t, uncosted.ID, receiveLine{qty: 7})

	summary, err := f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assertDecimal(t, 50, summary.TotalValue)
	assert.True(t, f.clock.Now().Equal(summary.GeneratedAt))
}

// TestKPI_TodayMovements は本日承認された入出庫数量の集計を確認
func TestKPI_TodayMovements(t *testing.T) {
	f := newFixture(t, nil)
	si := f.newStockItem(t, "ITEM-001", nil)
	f.receive(t, si.ID, receiveLine{qty: 100, cost: decPtr(1)})

	withdrawal := f.request(t, inventory.TransactionTypeWithdraw, si.ID, 20)
	_, err := f.manager.ApproveTransaction(f.ctx, withdrawal.ID, "manager")
	require.NoError(t, err)
	adjustment := f.request(t, inventory.TransactionTypeAdjustIn, si.ID, 3)
	_, err = f.manager.ApproveTransaction(f.ctx, adjustment.ID, "manager")
	require.NoError(t, err)
	pending := f.request(t, inventory.TransactionTypeWithdraw, si.ID, 5)

	summary, err := f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assertDecimal(t, 100, summary.TodayReceived)
	assertDecimal(t, 20, summary.TodayWithdrawn)
	assert.Equal(t, 1, summary.PendingTransactionCount)

	// 翌日に承認された出庫は翌日の集計に入る
	f.clock.Advance(24 * time.Hour)
	summary, err = f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assertDecimal(t, 0, summary.TodayReceived)
	assertDecimal(t, 0, summary.TodayWithdrawn)

	_, err = f.manager.ApproveTransaction(f.ctx, pending.ID, "manager")
	require.NoError(t, err)
	summary, err = f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assertDecimal(t, 5, summary.TodayWithdrawn)
	assert.Equal(t, 0, summary.PendingTransactionCount)
}

// TestKPI_ExpiringSoon は期限切れ間近バッチの件数を確認
func TestKPI_ExpiringSoon(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()
	in2Days := now.AddDate(0, 0, 2)
	in3Days := now.AddDate(0, 0, 3)
	in40Days := now.AddDate(0, 0, 40)
	yesterday := now.AddDate(0, 0, -1)

	// 残数0のバッチは数えない
	depleted := f.newStockItem(t, "ITEM-001", nil)
	f.receive(t, depleted.ID, receiveLine{qty: 2, lot: "EMPTY", expiry: &in2Days})
	withdrawal := f.request(t, inventory.TransactionTypeWithdraw, depleted.ID, 2)
	_, err := f.manager.ApproveTransaction(f.ctx, withdrawal.ID, "manager")
	require.NoError(t, err)

	si := f.newStockItem(t, "ITEM-002", nil)
	f.receive(t, si.ID,
		receiveLine{qty: 1, lot: "SOON", expiry: &in3Days},
		receiveLine{qty: 1, lot: "LATER", expiry: &in40Days},
		receiveLine{qty: 1, lot: "EXPIRED", expiry: &yesterday},
		receiveLine{qty: 1, lot: "NONE"},
	)

	summary, err := f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ExpiringSoonCount)

	expiring, err := f.kpi.GetExpiringBatches(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "SOON", *expiring[0].BatchNumber)

	expiring, err = f.kpi.GetExpiringBatches(f.ctx, 60)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, "SOON", *expiring[0].BatchNumber)
	assert.Equal(t, "LATER", *expiring[1].BatchNumber)

	expired, err := f.tracker.GetExpiredBatches(f.ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "EXPIRED", *expired[0].BatchNumber)
}

// TestKPI_ExpiringSoonDaysConfig は期限切れ間近の日数設定が反映されることを確認
func TestKPI_ExpiringSoonDaysConfig(t *testing.T) {
	f := newFixture(t, func(c *inventory.Config) { c.ExpiringSoonDays = 45 })
	in40Days := f.clock.Now().AddDate(0, 0, 40)
	si := f.newStockItem(t, "ITEM-001", nil)
	f.receive(t, si.ID, receiveLine{qty: 1, expiry: &in40Days})

	summary, err := f.kpi.Summary(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ExpiringSoonCount)
}

func TestKPI_BatchValue(t *testing.T) {
	f := newFixture(t, nil)
	si := f.newStockItem(t, "ITEM-001", nil)
	f.receive(t, si.ID, receiveLine{qty: 10, cost: decPtr(50)})
	f.receive(t, si.ID, receiveLine{qty: 10, cost: decPtr(70)})

	value, err := f.kpi.BatchValue(f.ctx)
	require.NoError(t, err)
	assertDecimal(t, 1200, value)
}
