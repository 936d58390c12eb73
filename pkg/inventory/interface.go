package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerManager defines the stock transaction lifecycle exposed to callers
// 在庫トランザクションのライフサイクル操作を定義
type LedgerManager interface {
	// トランザクション操作 - Transaction lifecycle
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*StockTransaction, error)
	ApproveTransaction(ctx context.Context, transactionID, approvedBy string) (*StockTransaction, error)
	RejectTransaction(ctx context.Context, transactionID string, reason *string) (*StockTransaction, error)

	// トランザクション照会 - Transaction inquiry
	GetTransaction(ctx context.Context, transactionID string) (*StockTransaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error)
}

// StockItemManager defines interface for catalog and stock item management
// 品目マスタと在庫品目管理のインターフェースを定義
type StockItemManager interface {
	CreateCatalogItem(ctx context.Context, item *CatalogItem) error
	CreateStockItem(ctx context.Context, stockItem *StockItem) error
	GetOrCreateStockItem(ctx context.Context, itemID, location string) (*StockItem, error)
	GetStockItem(ctx context.Context, stockItemID string) (*StockItem, error)
	ListStockItems(ctx context.Context, filter StockItemFilter) ([]StockItem, error)
	UpdateStockItemThresholds(ctx context.Context, stockItemID string, minQuantity, maxQuantity *decimal.Decimal) (*StockItem, error)
	DeactivateStockItem(ctx context.Context, stockItemID string) error
}

// BatchTracker defines interface for batch inquiry
// バッチ照会のインターフェースを定義
type BatchTracker interface {
	GetBatchesByStockItem(ctx context.Context, stockItemID string) ([]StockBatch, error)
	GetExpiringBatches(ctx context.Context, daysAhead int) ([]StockBatch, error)
	GetExpiredBatches(ctx context.Context) ([]StockBatch, error)
}

// Store is the ledger store: an all-or-nothing unit of work over the ledger tables
// 台帳ストア（全体成功か全体失敗の作業単位）
type Store interface {
	// WithinTx runs fn in a read-write unit of work; fn's error rolls everything back
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// WithinReadTx runs fn against a consistent read-only view
	WithinReadTx(ctx context.Context, fn func(tx Tx) error) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of ledger operations available inside a unit of work
// 作業単位内で利用可能な台帳操作
type Tx interface {
	// Catalog items
	CreateItem(ctx context.Context, item *CatalogItem) error
	GetItem(ctx context.Context, itemID string) (*CatalogItem, error)
	GetItemByCode(ctx context.Context, code string) (*CatalogItem, error)

	// Stock items
	CreateStockItem(ctx context.Context, stockItem *StockItem) error
	GetStockItem(ctx context.Context, stockItemID string) (*StockItem, error)
	GetStockItemByItem(ctx context.Context, itemID, location string) (*StockItem, error)
	// LockStockItem reads the stock item and holds a row lock until the unit of work ends
	LockStockItem(ctx context.Context, stockItemID string) (*StockItem, error)
	ApplyStockChange(ctx context.Context, change StockChange) error
	UpdateStockItem(ctx context.Context, stockItem *StockItem) error
	ListStockItems(ctx context.Context, filter StockItemFilter) ([]StockItem, error)

	// Batches
	CreateBatch(ctx context.Context, batch *StockBatch) error
	// ListAvailableBatches returns locked batches with currentQuantity > 0 in FEFO order
	ListAvailableBatches(ctx context.Context, stockItemID string) ([]StockBatch, error)
	// DecrementBatch subtracts qty only if the batch still holds at least qty
	DecrementBatch(ctx context.Context, batchID string, qty decimal.Decimal, at time.Time) error
	ListBatches(ctx context.Context, filter BatchFilter) ([]StockBatch, error)

	// Transactions
	// NextTransactionSequence atomically increments and returns the counter for day
	NextTransactionSequence(ctx context.Context, day time.Time) (int, error)
	CreateTransaction(ctx context.Context, transaction *StockTransaction) error
	GetTransaction(ctx context.Context, transactionID string) (*StockTransaction, error)
	// GetTransactionForUpdate reads the transaction and holds a row lock on it
	GetTransactionForUpdate(ctx context.Context, transactionID string) (*StockTransaction, error)
	UpdateTransactionStatus(ctx context.Context, transaction *StockTransaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error)
}

// StockChange is an atomic increment of a stock item's quantity with optional cost updates
// 在庫数量の増減と原価更新
type StockChange struct {
	StockItemID    string           // 在庫品目ID
	QuantityChange decimal.Decimal  // 数量増減（負の値は減少）
	LastCost       *decimal.Decimal // nilの場合は変更しない
	AverageCost    *decimal.Decimal // nilの場合は変更しない
	At             time.Time        // 更新日時
}

// StockItemFilter narrows stock item listings
type StockItemFilter struct {
	ActiveOnly bool
	ItemID     string
	Location   string
	Limit      int
	Offset     int
}

// BatchFilter narrows batch listings
type BatchFilter struct {
	StockItemID    string
	AvailableOnly  bool       // currentQuantity > 0
	ExpiringAfter  *time.Time // expiryDate >= ExpiringAfter
	ExpiringBefore *time.Time // expiryDate <= ExpiringBefore
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	Status       TransactionStatus
	Type         TransactionType
	StockItemID  string
	ApprovedFrom *time.Time // approvedAt >= ApprovedFrom
	ApprovedTo   *time.Time // approvedAt < ApprovedTo
	Limit        int
	Offset       int
}

// EventPublisher defines interface for publishing ledger events
// 台帳イベント発行のインターフェースを定義
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, event TransactionEvent) error
	PublishTransactionApproved(ctx context.Context, event TransactionEvent) error
	PublishTransactionRejected(ctx context.Context, event TransactionEvent) error
	PublishStockChanged(ctx context.Context, event StockChangedEvent) error
	PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error
	PublishBatchShortfall(ctx context.Context, event BatchShortfallEvent) error
}

// TransactionEvent represents a status change of a stock transaction
// トランザクションのステータス変更イベント
type TransactionEvent struct {
	TransactionID     string            `json:"transaction_id"`
	TransactionNumber string            `json:"transaction_number"`
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	TotalValue        decimal.Decimal   `json:"total_value"`
	ItemCount         int               `json:"item_count"`
	Timestamp         time.Time         `json:"timestamp"`
	UserID            string            `json:"user_id"`
}

// StockChangedEvent represents a stock level change
// 在庫レベル変更イベントを表現
type StockChangedEvent struct {
	StockItemID       string          `json:"stock_item_id"`
	TransactionID     string          `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	Type              TransactionType `json:"type"`
	OldQuantity       decimal.Decimal `json:"old_quantity"`
	NewQuantity       decimal.Decimal `json:"new_quantity"`
	Timestamp         time.Time       `json:"timestamp"`
}

// LowStockAlertEvent represents a stock item reaching its minimum quantity
// 低在庫アラートイベントを表現
type LowStockAlertEvent struct {
	StockItemID string          `json:"stock_item_id"`
	CurrentQty  decimal.Decimal `json:"current_qty"`
	MinQuantity decimal.Decimal `json:"min_quantity"`
	Timestamp   time.Time       `json:"timestamp"`
}

// BatchShortfallEvent represents a withdrawal that batches could not fully cover
// バッチ残数不足イベントを表現
type BatchShortfallEvent struct {
	StockItemID   string          `json:"stock_item_id"`
	TransactionID string          `json:"transaction_id"`
	Requested     decimal.Decimal `json:"requested"`
	Shortfall     decimal.Decimal `json:"shortfall"`
	Timestamp     time.Time       `json:"timestamp"`
}
