package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	p, err := NewPublisher(prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	return p
}

func TestPublisher_TransactionEvents(t *testing.T) {
	p := newTestPublisher(t)
	ctx := context.Background()
	receive := inventory.TransactionEvent{TransactionID: "tx-1", Type: inventory.TransactionTypeReceive}
	withdraw := inventory.TransactionEvent{TransactionID: "tx-2", Type: inventory.TransactionTypeWithdraw}

	require.NoError(t, p.PublishTransactionCreated(ctx, receive))
	require.NoError(t, p.PublishTransactionCreated(ctx, withdraw))
	require.NoError(t, p.PublishTransactionApproved(ctx, withdraw))
	require.NoError(t, p.PublishTransactionRejected(ctx, withdraw))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.transactions.WithLabelValues("created", "RECEIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.transactions.WithLabelValues("created", "WITHDRAW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.transactions.WithLabelValues("approved", "WITHDRAW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.transactions.WithLabelValues("rejected", "WITHDRAW")))
	assert.Equal(t, 4, testutil.CollectAndCount(p.transactions))
}

func TestPublisher_StockChanged(t *testing.T) {
	p := newTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.PublishStockChanged(ctx, inventory.StockChangedEvent{
		StockItemID: "si-1",
		Type:        inventory.TransactionTypeReceive,
		OldQuantity: decimal.Zero,
		NewQuantity: decimal.NewFromInt(100),
		Timestamp:   time.Now(),
	}))
	require.NoError(t, p.PublishStockChanged(ctx, inventory.StockChangedEvent{
		StockItemID: "si-1",
		Type:        inventory.TransactionTypeWithdraw,
		OldQuantity: decimal.NewFromInt(100),
		NewQuantity: decimal.RequireFromString("77.5"),
	}))

	assert.Equal(t, 100.0, testutil.ToFloat64(p.quantityMoved.WithLabelValues("in", "RECEIVE")))
	assert.Equal(t, 22.5, testutil.ToFloat64(p.quantityMoved.WithLabelValues("out", "WITHDRAW")))
	assert.Equal(t, 77.5, testutil.ToFloat64(p.stockLevel.WithLabelValues("si-1")))
}

func TestPublisher_Alerts(t *testing.T) {
	p := newTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.PublishLowStockAlert(ctx, inventory.LowStockAlertEvent{
		StockItemID: "si-1",
		CurrentQty:  decimal.NewFromInt(7),
		MinQuantity: decimal.NewFromInt(10),
	}))
	require.NoError(t, p.PublishBatchShortfall(ctx, inventory.BatchShortfallEvent{
		StockItemID: "si-1",
		Requested:   decimal.NewFromInt(40),
		Shortfall:   decimal.NewFromInt(5),
	}))
	require.NoError(t, p.PublishBatchShortfall(ctx, inventory.BatchShortfallEvent{
		StockItemID: "si-2",
		Requested:   decimal.NewFromInt(3),
		Shortfall:   decimal.NewFromInt(3),
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.lowStock.WithLabelValues("si-1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.shortfalls))
	assert.Equal(t, 8.0, testutil.ToFloat64(p.shortfallQty))
}

func TestNewPublisher_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPublisher(reg, nil)
	require.NoError(t, err)

	_, err = NewPublisher(reg, nil)
	assert.Error(t, err)
}
