package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockStore はテスト用のStoreモック
type MockStore struct {
	mock.Mock
}

func (m *MockStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(Tx); ok {
		if err := fn(tx); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *MockStore) WithinReadTx(ctx context.Context, fn func(tx Tx) error) error {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(Tx); ok {
		if err := fn(tx); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

// MockTx はテスト用のTxモック
type MockTx struct {
	mock.Mock
}

func (m *MockTx) CreateItem(ctx context.Context, item *CatalogItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockTx) GetItem(ctx context.Context, itemID string) (*CatalogItem, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CatalogItem), args.Error(1)
}

func (m *MockTx) GetItemByCode(ctx context.Context, code string) (*CatalogItem, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CatalogItem), args.Error(1)
}

func (m *MockTx) CreateStockItem(ctx context.Context, stockItem *StockItem) error {
	return m.Called(ctx, stockItem).Error(0)
}

func (m *MockTx) GetStockItem(ctx context.Context, stockItemID string) (*StockItem, error) {
	args := m.Called(ctx, stockItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StockItem), args.Error(1)
}

func (m *MockTx) GetStockItemByItem(ctx context.Context, itemID, location string) (*StockItem, error) {
	args := m.Called(ctx, itemID, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StockItem), args.Error(1)
}

func (m *MockTx) LockStockItem(ctx context.Context, stockItemID string) (*StockItem, error) {
	args := m.Called(ctx, stockItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StockItem), args.Error(1)
}

func (m *MockTx) ApplyStockChange(ctx context.Context, change StockChange) error {
	return m.Called(ctx, change).Error(0)
}

func (m *MockTx) UpdateStockItem(ctx context.Context, stockItem *StockItem) error {
	return m.Called(ctx, stockItem).Error(0)
}

func (m *MockTx) ListStockItems(ctx context.Context, filter StockItemFilter) ([]StockItem, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]StockItem), args.Error(1)
}

func (m *MockTx) CreateBatch(ctx context.Context, batch *StockBatch) error {
	return m.Called(ctx, batch).Error(0)
}

func (m *MockTx) ListAvailableBatches(ctx context.Context, stockItemID string) ([]StockBatch, error) {
	args := m.Called(ctx, stockItemID)
	return args.Get(0).([]StockBatch), args.Error(1)
}

func (m *MockTx) DecrementBatch(ctx context.Context, batchID string, qty decimal.Decimal, at time.Time) error {
	return m.Called(ctx, batchID, qty, at).Error(0)
}

func (m *MockTx) ListBatches(ctx context.Context, filter BatchFilter) ([]StockBatch, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]StockBatch), args.Error(1)
}

func (m *MockTx) NextTransactionSequence(ctx context.Context, day time.Time) (int, error) {
	args := m.Called(ctx, day)
	return args.Int(0), args.Error(1)
}

func (m *MockTx) CreateTransaction(ctx context.Context, transaction *StockTransaction) error {
	return m.Called(ctx, transaction).Error(0)
}

func (m *MockTx) GetTransaction(ctx context.Context, transactionID string) (*StockTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StockTransaction), args.Error(1)
}

func (m *MockTx) GetTransactionForUpdate(ctx context.Context, transactionID string) (*StockTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StockTransaction), args.Error(1)
}

func (m *MockTx) UpdateTransactionStatus(ctx context.Context, transaction *StockTransaction) error {
	return m.Called(ctx, transaction).Error(0)
}

func (m *MockTx) ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]StockTransaction), args.Error(1)
}

// MockEventPublisher はテスト用のイベント発行モック
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishTransactionCreated(ctx context.Context, event TransactionEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishTransactionApproved(ctx context.Context, event TransactionEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishTransactionRejected(ctx context.Context, event TransactionEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishStockChanged(ctx context.Context, event StockChangedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishBatchShortfall(ctx context.Context, event BatchShortfallEvent) error {
	return m.Called(ctx, event).Error(0)
}
