package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func seedStockItem(t *testing.T, store *MemoryStorage, qty int64) (*inventory.CatalogItem, *inventory.StockItem) {
	t.Helper()
	item := &inventory.CatalogItem{ID: "item-1", Code: "ITEM-001", Name: "鶏もも肉"}
	stockItem := &inventory.StockItem{
		ID:              "si-1",
		ItemID:          item.ID,
		CurrentQuantity: decimal.NewFromInt(qty),
		Location:        "MAIN",
		IsActive:        true,
		Version:         1,
		CreatedAt:       testNow,
	}
	require.NoError(t, store.WithinTx(context.Background(), func(tx inventory.Tx) error {
		if err := tx.CreateItem(context.Background(), item); err != nil {
			return err
		}
		return tx.CreateStockItem(context.Background(), stockItem)
	}))
	return item, stockItem
}

// TestMemoryStorage_Rollback はエラー時に作業単位の変更が破棄されることを確認
func TestMemoryStorage_Rollback(t *testing.T) {
	store := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()
	seedStockItem(t, store, 10)
	abort := errors.New("abort")

	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		if err := tx.ApplyStockChange(ctx, inventory.StockChange{StockItemID: "si-1", QuantityChange: decimal.NewFromInt(5), At: testNow}); err != nil {
			return err
		}
		if _, err := tx.NextTransactionSequence(ctx, testNow); err != nil {
			return err
		}
		return abort
	})
	assert.ErrorIs(t, err, abort)

	require.NoError(t, store.WithinTx(ctx, func(tx inventory.Tx) error {
		stockItem, err := tx.GetStockItem(ctx, "si-1")
		require.NoError(t, err)
		assert.True(t, stockItem.CurrentQuantity.Equal(decimal.NewFromInt(10)))

		seq, err := tx.NextTransactionSequence(ctx, testNow)
		require.NoError(t, err)
		assert.Equal(t, 1, seq, "ロールバックされた連番は再利用される")
		return nil
	}))
}

// TestMemoryStorage_ReadOnly は読み取り専用の作業単位で書き込みが拒否されることを確認
func TestMemoryStorage_ReadOnly(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()
	seedStockItem(t, store, 10)

	err := store.WithinReadTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.GetStockItem(ctx, "si-1")
		require.NoError(t, err)

		assert.ErrorIs(t, tx.CreateItem(ctx, &inventory.CatalogItem{ID: "x", Code: "X"}), inventory.ErrReadOnlyTx)
		_, err = tx.LockStockItem(ctx, "si-1")
		assert.ErrorIs(t, err, inventory.ErrReadOnlyTx)
		_, err = tx.ListAvailableBatches(ctx, "si-1")
		assert.ErrorIs(t, err, inventory.ErrReadOnlyTx)
		_, err = tx.NextTransactionSequence(ctx, testNow)
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrReadOnlyTx)
}

// TestMemoryStorage_DecrementBatch は残数を超える減算が拒否されることを確認
func TestMemoryStorage_DecrementBatch(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()
	seedStockItem(t, store, 10)

	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		require.NoError(t, tx.CreateBatch(ctx, &inventory.StockBatch{
			ID:              "b-1",
			StockItemID:     "si-1",
			InitialQuantity: decimal.NewFromInt(10),
			CurrentQuantity: decimal.NewFromInt(10),
			CreatedAt:       testNow,
		}))

		second := &inventory.StockBatch{
			ID:              "a-2",
			StockItemID:     "si-1",
			InitialQuantity: decimal.NewFromInt(1),
			CurrentQuantity: decimal.Zero,
			CreatedAt:       testNow,
		}
		require.NoError(t, tx.CreateBatch(ctx, second))
		assert.Equal(t, int64(2), second.Seq, "バッチには登録順が採番される")

		require.NoError(t, tx.DecrementBatch(ctx, "b-1", decimal.NewFromInt(4), testNow))

		var concurrencyErr *inventory.ConcurrencyError
		assert.ErrorAs(t, tx.DecrementBatch(ctx, "b-1", decimal.NewFromInt(7), testNow), &concurrencyErr)
		assert.ErrorIs(t, tx.DecrementBatch(ctx, "missing", decimal.NewFromInt(1), testNow), inventory.ErrBatchNotFound)

		batches, err := tx.ListAvailableBatches(ctx, "si-1")
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.True(t, batches[0].CurrentQuantity.Equal(decimal.NewFromInt(6)))

		require.NoError(t, tx.DecrementBatch(ctx, "b-1", decimal.NewFromInt(6), testNow))
		batches, err = tx.ListAvailableBatches(ctx, "si-1")
		require.NoError(t, err)
		assert.Empty(t, batches, "残数0のバッチは引当対象外")
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStorage_InvalidBatch(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()
	seedStockItem(t, store, 0)

	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateBatch(ctx, &inventory.StockBatch{
			ID:              "b-1",
			StockItemID:     "si-1",
			InitialQuantity: decimal.NewFromInt(5),
			CurrentQuantity: decimal.NewFromInt(6),
		})
	})
	assert.True(t, inventory.IsStorageError(err))
}

// TestMemoryStorage_Sequences は伝票連番が日付ごとに独立していることを確認
func TestMemoryStorage_Sequences(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()

	var got []int
	require.NoError(t, store.WithinTx(ctx, func(tx inventory.Tx) error {
		for _, day := range []time.Time{testNow, testNow, testNow.AddDate(0, 0, 1), testNow} {
			seq, err := tx.NextTransactionSequence(ctx, day)
			if err != nil {
				return err
			}
			got = append(got, seq)
		}
		return nil
	}))
	assert.Equal(t, []int{1, 2, 1, 3}, got)
}

// TestMemoryStorage_Duplicates は一意制約違反が台帳エラーで返ることを確認
func TestMemoryStorage_Duplicates(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()
	item, _ := seedStockItem(t, store, 0)

	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateItem(ctx, &inventory.CatalogItem{ID: "item-2", Code: item.Code, Name: "重複"})
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicateItem)

	err = store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateStockItem(ctx, &inventory.StockItem{ID: "si-2", ItemID: item.ID, Location: "MAIN"})
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicateStockItem)

	err = store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateStockItem(ctx, &inventory.StockItem{ID: "si-3", ItemID: "missing", Location: "MAIN"})
	})
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)

	transaction := &inventory.StockTransaction{ID: "tx-1", TransactionNumber: "STK-20240315-0001", Type: inventory.TransactionTypeReceive}
	require.NoError(t, store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateTransaction(ctx, transaction)
	}))
	err = store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateTransaction(ctx, &inventory.StockTransaction{ID: "tx-2", TransactionNumber: "STK-20240315-0001"})
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicateTransactionNumber)
}

// TestMemoryStorage_VersionCheck は古いバージョンでの更新が拒否されることを確認
func TestMemoryStorage_VersionCheck(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()
	seedStockItem(t, store, 0)

	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		stale, err := tx.LockStockItem(ctx, "si-1")
		if err != nil {
			return err
		}
		fresh, err := tx.LockStockItem(ctx, "si-1")
		if err != nil {
			return err
		}
		fresh.IsActive = false
		if err := tx.UpdateStockItem(ctx, fresh); err != nil {
			return err
		}
		assert.Equal(t, int64(2), fresh.Version)
		return tx.UpdateStockItem(ctx, stale)
	})
	assert.ErrorIs(t, err, inventory.ErrVersionMismatch)
}

// TestMemoryStorage_TransactionCopies は取得したトランザクションの変更がストアに影響しないことを確認
func TestMemoryStorage_TransactionCopies(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()
	seedStockItem(t, store, 0)

	require.NoError(t, store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateTransaction(ctx, &inventory.StockTransaction{
			ID:                "tx-1",
			TransactionNumber: "STK-20240315-0001",
			Type:              inventory.TransactionTypeWithdraw,
			Status:            inventory.TransactionStatusPending,
			Items:             []inventory.StockTransactionItem{{ID: "line-1", StockItemID: "si-1", Quantity: decimal.NewFromInt(1)}},
		})
	}))

	require.NoError(t, store.WithinReadTx(ctx, func(tx inventory.Tx) error {
		got, err := tx.GetTransaction(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, "tx-1", got.Items[0].TransactionID)
		got.Items[0].Quantity = decimal.NewFromInt(99)
		got.Status = inventory.TransactionStatusApproved

		again, err := tx.GetTransaction(ctx, "tx-1")
		require.NoError(t, err)
		assert.True(t, again.Items[0].Quantity.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, inventory.TransactionStatusPending, again.Status)

		_, err = tx.GetTransaction(ctx, "missing")
		assert.ErrorIs(t, err, inventory.ErrTransactionNotFound)
		return nil
	}))
}

func TestMemoryStorage_Closed(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	assert.Error(t, store.Ping(ctx))
	assert.Error(t, store.WithinTx(ctx, func(tx inventory.Tx) error { return nil }))
	assert.Error(t, store.WithinReadTx(ctx, func(tx inventory.Tx) error { return nil }))
}

func TestMemoryStorage_CanceledContext(t *testing.T) {
	store := NewMemoryStorage(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.WithinTx(ctx, func(tx inventory.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
