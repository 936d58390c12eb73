package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

// MemoryStorage is an in-process ledger Store.
// Read-write units of work are serialized and run against a copy of the
// state that replaces the current state only when fn succeeds.
// プロセス内で動作する台帳ストア
type MemoryStorage struct {
	mu     sync.RWMutex
	state  *memState
	logger *zap.Logger
	closed bool
}

var _ inventory.Store = (*MemoryStorage)(nil)

type memState struct {
	items        map[string]inventory.CatalogItem
	stockItems   map[string]inventory.StockItem
	batches      map[string]inventory.StockBatch
	transactions map[string]inventory.StockTransaction
	insertOrder  map[string]int64 // トランザクションの登録順
	sequences    map[string]int   // 日付ごとの伝票連番
	nextOrder    int64
	nextBatchSeq int64
}

// NewMemoryStorage creates an empty in-memory store
// 空のインメモリストアを作成
func NewMemoryStorage(logger *zap.Logger) *MemoryStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStorage{
		state: &memState{
			items:        make(map[string]inventory.CatalogItem),
			stockItems:   make(map[string]inventory.StockItem),
			batches:      make(map[string]inventory.StockBatch),
			transactions: make(map[string]inventory.StockTransaction),
			insertOrder:  make(map[string]int64),
			sequences:    make(map[string]int),
		},
		logger: logger,
	}
}

// WithinTx runs fn against a private copy of the state and publishes it on success
// 状態のコピーに対してfnを実行し、成功時のみ反映
func (m *MemoryStorage) WithinTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return inventory.NewStorageError("begin", "トランザクション開始に失敗しました", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return inventory.NewStorageError("begin", "ストアは既に閉じられています", nil)
	}

	working := m.state.clone()
	if err := fn(&memTx{state: working}); err != nil {
		m.logger.Debug("インメモリトランザクションをロールバックしました", zap.Error(err))
		return err
	}
	if err := ctx.Err(); err != nil {
		return inventory.NewStorageError("commit", "コミットに失敗しました", err)
	}

	m.state = working
	return nil
}

// WithinReadTx runs fn against the current state; writes fail with ErrReadOnlyTx
// 現在の状態に対して読み取り専用でfnを実行
func (m *MemoryStorage) WithinReadTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return inventory.NewStorageError("begin", "トランザクション開始に失敗しました", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return inventory.NewStorageError("begin", "ストアは既に閉じられています", nil)
	}

	return fn(&memTx{state: m.state, readOnly: true})
}

// Ping reports whether the store is open
func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return inventory.NewStorageError("ping", "ストアは既に閉じられています", nil)
	}
	return nil
}

// Close marks the store closed
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (s *memState) clone() *memState {
	c := &memState{
		items:        make(map[string]inventory.CatalogItem, len(s.items)),
		stockItems:   make(map[string]inventory.StockItem, len(s.stockItems)),
		batches:      make(map[string]inventory.StockBatch, len(s.batches)),
		transactions: make(map[string]inventory.StockTransaction, len(s.transactions)),
		insertOrder:  make(map[string]int64, len(s.insertOrder)),
		sequences:    make(map[string]int, len(s.sequences)),
		nextOrder:    s.nextOrder,
		nextBatchSeq: s.nextBatchSeq,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.stockItems {
		c.stockItems[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.insertOrder {
		c.insertOrder[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// memTx implements inventory.Tx over one memState
type memTx struct {
	state    *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return inventory.ErrReadOnlyTx
	}
	return nil
}

// 品目マスタ

func (t *memTx) CreateItem(ctx context.Context, item *inventory.CatalogItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.items[item.ID]; ok {
		return inventory.NewStorageError("create_item", "品目作成に失敗しました", inventory.ErrDuplicateItem)
	}
	for _, existing := range t.state.items {
		if existing.Code == item.Code {
			return inventory.NewStorageError("create_item", "品目作成に失敗しました", inventory.ErrDuplicateItem)
		}
	}
	t.state.items[item.ID] = *item
	return nil
}

func (t *memTx) GetItem(ctx context.Context, itemID string) (*inventory.CatalogItem, error) {
	item, ok := t.state.items[itemID]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return &item, nil
}

func (t *memTx) GetItemByCode(ctx context.Context, code string) (*inventory.CatalogItem, error) {
	for _, item := range t.state.items {
		if item.Code == code {
			found := item
			return &found, nil
		}
	}
	return nil, inventory.ErrItemNotFound
}

// 在庫品目

func (t *memTx) CreateStockItem(ctx context.Context, stockItem *inventory.StockItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.items[stockItem.ItemID]; !ok {
		return inventory.NewStorageError("create_stock_item", "在庫品目作成に失敗しました", inventory.ErrItemNotFound)
	}
	for _, existing := range t.state.stockItems {
		if existing.ID == stockItem.ID || (existing.ItemID == stockItem.ItemID && existing.Location == stockItem.Location) {
			return inventory.NewStorageError("create_stock_item", "在庫品目作成に失敗しました", inventory.ErrDuplicateStockItem)
		}
	}
	stored := *stockItem
	stored.Item = nil
	t.state.stockItems[stored.ID] = stored
	return nil
}

func (t *memTx) GetStockItem(ctx context.Context, stockItemID string) (*inventory.StockItem, error) {
	stockItem, ok := t.state.stockItems[stockItemID]
	if !ok {
		return nil, inventory.ErrStockItemNotFound
	}
	return &stockItem, nil
}

func (t *memTx) GetStockItemByItem(ctx context.Context, itemID, location string) (*inventory.StockItem, error) {
	for _, stockItem := range t.state.stockItems {
		if stockItem.ItemID == itemID && stockItem.Location == location {
			found := stockItem
			return &found, nil
		}
	}
	return nil, inventory.ErrStockItemNotFound
}

// LockStockItem is GetStockItem; the store-wide writer lock already serializes units of work
func (t *memTx) LockStockItem(ctx context.Context, stockItemID string) (*inventory.StockItem, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.GetStockItem(ctx, stockItemID)
}

func (t *memTx) ApplyStockChange(ctx context.Context, change inventory.StockChange) error {
	if err := t.writable(); err != nil {
		return err
	}
	stockItem, ok := t.state.stockItems[change.StockItemID]
	if !ok {
		return inventory.ErrStockItemNotFound
	}
	stockItem.CurrentQuantity = stockItem.CurrentQuantity.Add(change.QuantityChange)
	if change.LastCost != nil {
		stockItem.LastCost = decimalCopy(*change.LastCost)
	}
	if change.AverageCost != nil {
		stockItem.AverageCost = decimalCopy(*change.AverageCost)
	}
	stockItem.Version++
	stockItem.UpdatedAt = change.At
	t.state.stockItems[stockItem.ID] = stockItem
	return nil
}

func (t *memTx) UpdateStockItem(ctx context.Context, stockItem *inventory.StockItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	stored, ok := t.state.stockItems[stockItem.ID]
	if !ok || stored.Version != stockItem.Version {
		return inventory.ErrVersionMismatch
	}
	stored.MinQuantity = stockItem.MinQuantity
	stored.MaxQuantity = stockItem.MaxQuantity
	stored.Location = stockItem.Location
	stored.IsActive = stockItem.IsActive
	stored.UpdatedAt = stockItem.UpdatedAt
	stored.Version++
	t.state.stockItems[stored.ID] = stored
	stockItem.Version = stored.Version
	return nil
}

func (t *memTx) ListStockItems(ctx context.Context, filter inventory.StockItemFilter) ([]inventory.StockItem, error) {
	stockItems := make([]inventory.StockItem, 0, len(t.state.stockItems))
	for _, stockItem := range t.state.stockItems {
		if filter.ActiveOnly && !stockItem.IsActive {
			continue
		}
		if filter.ItemID != "" && stockItem.ItemID != filter.ItemID {
			continue
		}
		if filter.Location != "" && stockItem.Location != filter.Location {
			continue
		}
		stockItems = append(stockItems, stockItem)
	}

	sort.Slice(stockItems, func(i, j int) bool {
		if !stockItems[i].CreatedAt.Equal(stockItems[j].CreatedAt) {
			return stockItems[i].CreatedAt.Before(stockItems[j].CreatedAt)
		}
		return stockItems[i].ID < stockItems[j].ID
	})

	return page(stockItems, filter.Limit, filter.Offset), nil
}

// バッチ

func (t *memTx) CreateBatch(ctx context.Context, batch *inventory.StockBatch) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.stockItems[batch.StockItemID]; !ok {
		return inventory.NewStorageError("create_batch", "バッチ作成に失敗しました", inventory.ErrStockItemNotFound)
	}
	if batch.CurrentQuantity.IsNegative() || batch.CurrentQuantity.GreaterThan(batch.InitialQuantity) {
		return inventory.NewStorageError("create_batch", "バッチ数量が不正です", nil)
	}
	t.state.nextBatchSeq++
	batch.Seq = t.state.nextBatchSeq
	t.state.batches[batch.ID] = *batch
	return nil
}

func (t *memTx) ListAvailableBatches(ctx context.Context, stockItemID string) ([]inventory.StockBatch, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.ListBatches(ctx, inventory.BatchFilter{StockItemID: stockItemID, AvailableOnly: true})
}

func (t *memTx) DecrementBatch(ctx context.Context, batchID string, qty decimal.Decimal, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	batch, ok := t.state.batches[batchID]
	if !ok {
		return inventory.ErrBatchNotFound
	}
	if batch.CurrentQuantity.LessThan(qty) {
		return inventory.NewConcurrencyError("decrement_batch", batchID, "バッチ残数が他のトランザクションによって変更されました")
	}
	batch.CurrentQuantity = batch.CurrentQuantity.Sub(qty)
	batch.UpdatedAt = at
	t.state.batches[batchID] = batch
	return nil
}

func (t *memTx) ListBatches(ctx context.Context, filter inventory.BatchFilter) ([]inventory.StockBatch, error) {
	batches := make([]inventory.StockBatch, 0)
	for _, batch := range t.state.batches {
		if filter.StockItemID != "" && batch.StockItemID != filter.StockItemID {
			continue
		}
		if filter.AvailableOnly && !batch.CurrentQuantity.IsPositive() {
			continue
		}
		if filter.ExpiringAfter != nil && (batch.ExpiryDate == nil || batch.ExpiryDate.Before(*filter.ExpiringAfter)) {
			continue
		}
		if filter.ExpiringBefore != nil && (batch.ExpiryDate == nil || batch.ExpiryDate.After(*filter.ExpiringBefore)) {
			continue
		}
		batches = append(batches, batch)
	}
	inventory.SortBatchesFEFO(batches)
	return batches, nil
}

// トランザクション

func (t *memTx) NextTransactionSequence(ctx context.Context, day time.Time) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	key := day.Format("2006-01-02")
	t.state.sequences[key]++
	return t.state.sequences[key], nil
}

func (t *memTx) CreateTransaction(ctx context.Context, transaction *inventory.StockTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, existing := range t.state.transactions {
		if existing.ID == transaction.ID || existing.TransactionNumber == transaction.TransactionNumber {
			return inventory.NewStorageError("create_transaction", "トランザクション作成に失敗しました", inventory.ErrDuplicateTransactionNumber)
		}
	}
	stored := *transaction
	stored.Items = append([]inventory.StockTransactionItem(nil), transaction.Items...)
	for i := range stored.Items {
		stored.Items[i].TransactionID = stored.ID
	}
	t.state.transactions[stored.ID] = stored
	t.state.nextOrder++
	t.state.insertOrder[stored.ID] = t.state.nextOrder
	return nil
}

func (t *memTx) GetTransaction(ctx context.Context, transactionID string) (*inventory.StockTransaction, error) {
	transaction, ok := t.state.transactions[transactionID]
	if !ok {
		return nil, inventory.ErrTransactionNotFound
	}
	transaction.Items = append(make([]inventory.StockTransactionItem, 0, len(transaction.Items)), transaction.Items...)
	return &transaction, nil
}

func (t *memTx) GetTransactionForUpdate(ctx context.Context, transactionID string) (*inventory.StockTransaction, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.GetTransaction(ctx, transactionID)
}

func (t *memTx) UpdateTransactionStatus(ctx context.Context, transaction *inventory.StockTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	stored, ok := t.state.transactions[transaction.ID]
	if !ok {
		return inventory.ErrTransactionNotFound
	}
	stored.Status = transaction.Status
	stored.ApprovedBy = transaction.ApprovedBy
	stored.ApprovedAt = transaction.ApprovedAt
	stored.RejectedAt = transaction.RejectedAt
	stored.RejectReason = transaction.RejectReason
	stored.UpdatedAt = transaction.UpdatedAt
	t.state.transactions[stored.ID] = stored
	return nil
}

func (t *memTx) ListTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.StockTransaction, error) {
	transactions := make([]inventory.StockTransaction, 0)
	for _, transaction := range t.state.transactions {
		if filter.Status != "" && transaction.Status != filter.Status {
			continue
		}
		if filter.Type != "" && transaction.Type != filter.Type {
			continue
		}
		if filter.StockItemID != "" && !touches(transaction, filter.StockItemID) {
			continue
		}
		if filter.ApprovedFrom != nil && (transaction.ApprovedAt == nil || transaction.ApprovedAt.Before(*filter.ApprovedFrom)) {
			continue
		}
		if filter.ApprovedTo != nil && (transaction.ApprovedAt == nil || !transaction.ApprovedAt.Before(*filter.ApprovedTo)) {
			continue
		}
		transaction.Items = append(make([]inventory.StockTransactionItem, 0, len(transaction.Items)), transaction.Items...)
		transactions = append(transactions, transaction)
	}

	order := t.state.insertOrder
	sort.Slice(transactions, func(i, j int) bool {
		a, b := transactions[i], transactions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return order[a.ID] > order[b.ID]
	})

	return page(transactions, filter.Limit, filter.Offset), nil
}

func touches(transaction inventory.StockTransaction, stockItemID string) bool {
	for _, item := range transaction.Items {
		if item.StockItemID == stockItemID {
			return true
		}
	}
	return false
}

func page[T any](rows []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func decimalCopy(d decimal.Decimal) *decimal.Decimal {
	return &d
}
