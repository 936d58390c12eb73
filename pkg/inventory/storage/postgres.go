package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

// PostgreSQLStorage implements the ledger Store using PostgreSQL
// PostgreSQLを使用した台帳ストアの実装
type PostgreSQLStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ inventory.Store = (*PostgreSQLStorage)(nil)

// PoolConfig holds connection pool settings
// 接続プール設定
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(ctx context.Context, dsn string, pool PoolConfig, logger *zap.Logger) (*PostgreSQLStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続プール設定
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 10
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	// 接続テスト
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	return &PostgreSQLStorage{db: db, logger: logger}, nil
}

// NewPostgreSQLStorageFromDB wraps an existing connection pool
func NewPostgreSQLStorageFromDB(db *sql.DB, logger *zap.Logger) *PostgreSQLStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgreSQLStorage{db: db, logger: logger}
}

// WithinTx runs fn inside a read-write database transaction
// 読み書きトランザクション内でfnを実行
func (s *PostgreSQLStorage) WithinTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	return s.within(ctx, nil, fn)
}

// WithinReadTx runs fn inside a read-only repeatable-read transaction
// 読み取り専用トランザクション内でfnを実行
func (s *PostgreSQLStorage) WithinReadTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	return s.within(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}, fn)
}

func (s *PostgreSQLStorage) within(ctx context.Context, opts *sql.TxOptions, fn func(tx inventory.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return inventory.NewStorageError("begin", "トランザクション開始に失敗しました", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("ロールバックに失敗しました", zap.Error(rbErr))
		}
	}()

	if err := fn(&pgTx{tx: sqlTx, logger: s.logger}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError("commit", "コミットに失敗しました", err)
	}
	committed = true
	return nil
}

// Ping checks database connectivity
// データベース接続を確認
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return inventory.NewStorageError("ping", "データベースpingに失敗しました", err)
	}
	return nil
}

// Close closes the connection pool
// 接続プールを閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

// pgTx implements inventory.Tx over one *sql.Tx
type pgTx struct {
	tx     *sql.Tx
	logger *zap.Logger
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// 品目マスタ

func (t *pgTx) CreateItem(ctx context.Context, item *inventory.CatalogItem) error {
	query := `
		INSERT INTO items (id, code, name, unit, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.tx.ExecContext(ctx, query,
		item.ID,
		item.Code,
		item.Name,
		item.Unit,
		item.Category,
		item.CreatedAt,
		item.UpdatedAt,
	)
	return mapError("create_item", "品目作成に失敗しました", err)
}

const itemColumns = `id, code, name, unit, category, created_at, updated_at`

func (t *pgTx) GetItem(ctx context.Context, itemID string) (*inventory.CatalogItem, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, itemID)
	return scanItem(row)
}

func (t *pgTx) GetItemByCode(ctx context.Context, code string) (*inventory.CatalogItem, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE code = $1`, code)
	return scanItem(row)
}

func scanItem(row rowScanner) (*inventory.CatalogItem, error) {
	item := &inventory.CatalogItem{}
	err := row.Scan(
		&item.ID,
		&item.Code,
		&item.Name,
		&item.Unit,
		&item.Category,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrItemNotFound
		}
		return nil, mapError("get_item", "品目取得に失敗しました", err)
	}
	return item, nil
}

// 在庫品目

const stockItemColumns = `id, item_id, current_quantity, min_quantity, max_quantity, average_cost, last_cost,
		location, is_active, version, created_at, updated_at`

func (t *pgTx) CreateStockItem(ctx context.Context, stockItem *inventory.StockItem) error {
	query := `
		INSERT INTO stock_items (` + stockItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := t.tx.ExecContext(ctx, query,
		stockItem.ID,
		stockItem.ItemID,
		stockItem.CurrentQuantity,
		stockItem.MinQuantity,
		stockItem.MaxQuantity,
		stockItem.AverageCost,
		stockItem.LastCost,
		stockItem.Location,
		stockItem.IsActive,
		stockItem.Version,
		stockItem.CreatedAt,
		stockItem.UpdatedAt,
	)
	return mapError("create_stock_item", "在庫品目作成に失敗しました", err)
}

func (t *pgTx) GetStockItem(ctx context.Context, stockItemID string) (*inventory.StockItem, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1`, stockItemID)
	return scanStockItem(row)
}

func (t *pgTx) GetStockItemByItem(ctx context.Context, itemID, location string) (*inventory.StockItem, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+stockItemColumns+` FROM stock_items WHERE item_id = $1 AND location = $2`, itemID, location)
	return scanStockItem(row)
}

func (t *pgTx) LockStockItem(ctx context.Context, stockItemID string) (*inventory.StockItem, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1 FOR UPDATE`, stockItemID)
	return scanStockItem(row)
}

func (t *pgTx) ApplyStockChange(ctx context.Context, change inventory.StockChange) error {
	query := `
		UPDATE stock_items
		SET current_quantity = current_quantity + $2,
			last_cost = COALESCE($3::numeric, last_cost),
			average_cost = COALESCE($4::numeric, average_cost),
			version = version + 1,
			updated_at = $5
		WHERE id = $1`

	result, err := t.tx.ExecContext(ctx, query,
		change.StockItemID,
		change.QuantityChange,
		change.LastCost,
		change.AverageCost,
		change.At,
	)
	if err != nil {
		return mapError("apply_stock_change", "在庫数量更新に失敗しました", err)
	}
	return requireAffected(result, "apply_stock_change", inventory.ErrStockItemNotFound)
}

func (t *pgTx) UpdateStockItem(ctx context.Context, stockItem *inventory.StockItem) error {
	query := `
		UPDATE stock_items
		SET min_quantity = $2, max_quantity = $3, location = $4, is_active = $5,
			version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $7`

	result, err := t.tx.ExecContext(ctx, query,
		stockItem.ID,
		stockItem.MinQuantity,
		stockItem.MaxQuantity,
		stockItem.Location,
		stockItem.IsActive,
		stockItem.UpdatedAt,
		stockItem.Version,
	)
	if err != nil {
		return mapError("update_stock_item", "在庫品目更新に失敗しました", err)
	}
	if err := requireAffected(result, "update_stock_item", inventory.ErrVersionMismatch); err != nil {
		return err
	}
	stockItem.Version++
	return nil
}

func (t *pgTx) ListStockItems(ctx context.Context, filter inventory.StockItemFilter) ([]inventory.StockItem, error) {
	var where []string
	var args []interface{}
	if filter.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		where = append(where, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if filter.Location != "" {
		args = append(args, filter.Location)
		where = append(where, fmt.Sprintf("location = $%d", len(args)))
	}

	query := `SELECT ` + stockItemColumns + ` FROM stock_items` + whereClause(where) + ` ORDER BY created_at, id`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list_stock_items", "在庫品目一覧取得に失敗しました", err)
	}
	defer rows.Close()

	stockItems := make([]inventory.StockItem, 0)
	for rows.Next() {
		stockItem, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		stockItems = append(stockItems, *stockItem)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list_stock_items", "在庫品目スキャンに失敗しました", err)
	}
	return stockItems, nil
}

func scanStockItem(row rowScanner) (*inventory.StockItem, error) {
	var (
		stockItem                         inventory.StockItem
		minQty, maxQty, avgCost, lastCost decimal.NullDecimal
	)
	err := row.Scan(
		&stockItem.ID,
		&stockItem.ItemID,
		&stockItem.CurrentQuantity,
		&minQty,
		&maxQty,
		&avgCost,
		&lastCost,
		&stockItem.Location,
		&stockItem.IsActive,
		&stockItem.Version,
		&stockItem.CreatedAt,
		&stockItem.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrStockItemNotFound
		}
		return nil, mapError("scan_stock_item", "在庫品目取得に失敗しました", err)
	}
	stockItem.MinQuantity = nullDecimal(minQty)
	stockItem.MaxQuantity = nullDecimal(maxQty)
	stockItem.AverageCost = nullDecimal(avgCost)
	stockItem.LastCost = nullDecimal(lastCost)
	return &stockItem, nil
}

// バッチ

const batchInsertColumns = `id, stock_item_id, batch_number, expiry_date, manufacture_date, initial_quantity,
		current_quantity, unit_cost, transaction_id, created_at, updated_at`

const batchColumns = batchInsertColumns + `, seq`

// FEFO: 有効期限昇順（期限なしは最後）、入庫順
const batchOrder = ` ORDER BY expiry_date ASC NULLS LAST, created_at ASC, seq ASC, id ASC`

func (t *pgTx) CreateBatch(ctx context.Context, batch *inventory.StockBatch) error {
	query := `
		INSERT INTO stock_batches (` + batchInsertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq`

	err := t.tx.QueryRowContext(ctx, query,
		batch.ID,
		batch.StockItemID,
		batch.BatchNumber,
		batch.ExpiryDate,
		batch.ManufactureDate,
		batch.InitialQuantity,
		batch.CurrentQuantity,
		batch.UnitCost,
		batch.TransactionID,
		batch.CreatedAt,
		batch.UpdatedAt,
	).Scan(&batch.Seq)
	return mapError("create_batch", "バッチ作成に失敗しました", err)
}

func (t *pgTx) ListAvailableBatches(ctx context.Context, stockItemID string) ([]inventory.StockBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM stock_batches
		WHERE stock_item_id = $1 AND current_quantity > 0` + batchOrder + ` FOR UPDATE`
	return t.queryBatches(ctx, "list_available_batches", query, stockItemID)
}

func (t *pgTx) DecrementBatch(ctx context.Context, batchID string, qty decimal.Decimal, at time.Time) error {
	query := `
		UPDATE stock_batches
		SET current_quantity = current_quantity - $2, updated_at = $3
		WHERE id = $1 AND current_quantity >= $2`

	result, err := t.tx.ExecContext(ctx, query, batchID, qty, at)
	if err != nil {
		return mapError("decrement_batch", "バッチ数量更新に失敗しました", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError("decrement_batch", "更新行数の取得に失敗しました", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM stock_batches WHERE id = $1)`, batchID).Scan(&exists); err != nil {
		return mapError("decrement_batch", "バッチ存在確認に失敗しました", err)
	}
	if !exists {
		return inventory.ErrBatchNotFound
	}
	return inventory.NewConcurrencyError("decrement_batch", batchID, "バッチ残数が他のトランザクションによって変更されました")
}

func (t *pgTx) ListBatches(ctx context.Context, filter inventory.BatchFilter) ([]inventory.StockBatch, error) {
	var where []string
	var args []interface{}
	if filter.StockItemID != "" {
		args = append(args, filter.StockItemID)
		where = append(where, fmt.Sprintf("stock_item_id = $%d", len(args)))
	}
	if filter.AvailableOnly {
		where = append(where, "current_quantity > 0")
	}
	if filter.ExpiringAfter != nil {
		args = append(args, *filter.ExpiringAfter)
		where = append(where, fmt.Sprintf("expiry_date >= $%d", len(args)))
	}
	if filter.ExpiringBefore != nil {
		args = append(args, *filter.ExpiringBefore)
		where = append(where, fmt.Sprintf("expiry_date <= $%d", len(args)))
	}

	query := `SELECT ` + batchColumns + ` FROM stock_batches` + whereClause(where) + batchOrder
	return t.queryBatches(ctx, "list_batches", query, args...)
}

func (t *pgTx) queryBatches(ctx context.Context, op, query string, args ...interface{}) ([]inventory.StockBatch, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, "バッチ取得に失敗しました", err)
	}
	defer rows.Close()

	batches := make([]inventory.StockBatch, 0)
	for rows.Next() {
		var (
			batch           inventory.StockBatch
			batchNumber     sql.NullString
			expiry, manufac sql.NullTime
		)
		err := rows.Scan(
			&batch.ID,
			&batch.StockItemID,
			&batchNumber,
			&expiry,
			&manufac,
			&batch.InitialQuantity,
			&batch.CurrentQuantity,
			&batch.UnitCost,
			&batch.TransactionID,
			&batch.CreatedAt,
			&batch.UpdatedAt,
			&batch.Seq,
		)
		if err != nil {
			return nil, mapError(op, "バッチスキャンに失敗しました", err)
		}
		batch.BatchNumber = nullString(batchNumber)
		batch.ExpiryDate = nullTime(expiry)
		batch.ManufactureDate = nullTime(manufac)
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, "バッチスキャンに失敗しました", err)
	}
	return batches, nil
}

// トランザクション

func (t *pgTx) NextTransactionSequence(ctx context.Context, day time.Time) (int, error) {
	query := `
		INSERT INTO transaction_sequences (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = transaction_sequences.last_value + 1
		RETURNING last_value`

	var seq int
	if err := t.tx.QueryRowContext(ctx, query, day.Format("2006-01-02")).Scan(&seq); err != nil {
		return 0, mapError("next_transaction_sequence", "伝票番号の採番に失敗しました", err)
	}
	return seq, nil
}

const transactionColumns = `id, transaction_number, type, status, description, reference, attachment_url,
		requested_by, approved_by, requested_at, approved_at, rejected_at, reject_reason, created_at, updated_at`

func (t *pgTx) CreateTransaction(ctx context.Context, transaction *inventory.StockTransaction) error {
	query := `
		INSERT INTO stock_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := t.tx.ExecContext(ctx, query,
		transaction.ID,
		transaction.TransactionNumber,
		transaction.Type,
		transaction.Status,
		transaction.Description,
		transaction.Reference,
		transaction.AttachmentURL,
		transaction.RequestedBy,
		transaction.ApprovedBy,
		transaction.RequestedAt,
		transaction.ApprovedAt,
		transaction.RejectedAt,
		transaction.RejectReason,
		transaction.CreatedAt,
		transaction.UpdatedAt,
	)
	if err != nil {
		return mapError("create_transaction", "トランザクション作成に失敗しました", err)
	}

	itemQuery := `
		INSERT INTO stock_transaction_items (id, transaction_id, stock_item_id, quantity, unit_cost, total_cost,
			batch_number, expiry_date, manufacture_date, purpose, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for _, item := range transaction.Items {
		_, err := t.tx.ExecContext(ctx, itemQuery,
			item.ID,
			transaction.ID,
			item.StockItemID,
			item.Quantity,
			item.UnitCost,
			item.TotalCost,
			item.BatchNumber,
			item.ExpiryDate,
			item.ManufactureDate,
			item.Purpose,
			item.Notes,
		)
		if err != nil {
			return mapError("create_transaction_item", "トランザクション明細作成に失敗しました", err)
		}
	}

	return nil
}

func (t *pgTx) GetTransaction(ctx context.Context, transactionID string) (*inventory.StockTransaction, error) {
	return t.getTransaction(ctx, `SELECT `+transactionColumns+` FROM stock_transactions WHERE id = $1`, transactionID)
}

func (t *pgTx) GetTransactionForUpdate(ctx context.Context, transactionID string) (*inventory.StockTransaction, error) {
	return t.getTransaction(ctx, `SELECT `+transactionColumns+` FROM stock_transactions WHERE id = $1 FOR UPDATE`, transactionID)
}

func (t *pgTx) getTransaction(ctx context.Context, query, transactionID string) (*inventory.StockTransaction, error) {
	transaction, err := scanTransaction(t.tx.QueryRowContext(ctx, query, transactionID))
	if err != nil {
		return nil, err
	}

	items, err := t.loadItems(ctx, []string{transaction.ID})
	if err != nil {
		return nil, err
	}
	transaction.Items = items[transaction.ID]
	if transaction.Items == nil {
		transaction.Items = make([]inventory.StockTransactionItem, 0)
	}
	return transaction, nil
}

func (t *pgTx) UpdateTransactionStatus(ctx context.Context, transaction *inventory.StockTransaction) error {
	query := `
		UPDATE stock_transactions
		SET status = $2, approved_by = $3, approved_at = $4, rejected_at = $5, reject_reason = $6, updated_at = $7
		WHERE id = $1`

	result, err := t.tx.ExecContext(ctx, query,
		transaction.ID,
		transaction.Status,
		transaction.ApprovedBy,
		transaction.ApprovedAt,
		transaction.RejectedAt,
		transaction.RejectReason,
		transaction.UpdatedAt,
	)
	if err != nil {
		return mapError("update_transaction_status", "トランザクション更新に失敗しました", err)
	}
	return requireAffected(result, "update_transaction_status", inventory.ErrTransactionNotFound)
}

func (t *pgTx) ListTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.StockTransaction, error) {
	var where []string
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.StockItemID != "" {
		args = append(args, filter.StockItemID)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM stock_transaction_items i WHERE i.transaction_id = stock_transactions.id AND i.stock_item_id = $%d)",
			len(args)))
	}
	if filter.ApprovedFrom != nil {
		args = append(args, *filter.ApprovedFrom)
		where = append(where, fmt.Sprintf("approved_at >= $%d", len(args)))
	}
	if filter.ApprovedTo != nil {
		args = append(args, *filter.ApprovedTo)
		where = append(where, fmt.Sprintf("approved_at < $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM stock_transactions` + whereClause(where) +
		` ORDER BY created_at DESC, id DESC`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list_transactions", "トランザクション一覧取得に失敗しました", err)
	}
	defer rows.Close()

	transactions := make([]inventory.StockTransaction, 0)
	ids := make([]string, 0)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *transaction)
		ids = append(ids, transaction.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list_transactions", "トランザクションスキャンに失敗しました", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return transactions, nil
	}

	items, err := t.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range transactions {
		transactions[i].Items = items[transactions[i].ID]
		if transactions[i].Items == nil {
			transactions[i].Items = make([]inventory.StockTransactionItem, 0)
		}
	}
	return transactions, nil
}

func (t *pgTx) loadItems(ctx context.Context, transactionIDs []string) (map[string][]inventory.StockTransactionItem, error) {
	query := `
		SELECT id, transaction_id, stock_item_id, quantity, unit_cost, total_cost,
			batch_number, expiry_date, manufacture_date, purpose, notes
		FROM stock_transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, line_no`

	rows, err := t.tx.QueryContext(ctx, query, pq.Array(transactionIDs))
	if err != nil {
		return nil, mapError("load_transaction_items", "トランザクション明細取得に失敗しました", err)
	}
	defer rows.Close()

	items := make(map[string][]inventory.StockTransactionItem, len(transactionIDs))
	for rows.Next() {
		var (
			item                 inventory.StockTransactionItem
			unitCost, totalCost  decimal.NullDecimal
			batchNumber, purpose sql.NullString
			expiry, manufacture  sql.NullTime
		)
		err := rows.Scan(
			&item.ID,
			&item.TransactionID,
			&item.StockItemID,
			&item.Quantity,
			&unitCost,
			&totalCost,
			&batchNumber,
			&expiry,
			&manufacture,
			&purpose,
			&item.Notes,
		)
		if err != nil {
			return nil, mapError("load_transaction_items", "トランザクション明細スキャンに失敗しました", err)
		}
		item.UnitCost = nullDecimal(unitCost)
		item.TotalCost = nullDecimal(totalCost)
		item.BatchNumber = nullString(batchNumber)
		item.ExpiryDate = nullTime(expiry)
		item.ManufactureDate = nullTime(manufacture)
		item.Purpose = nullString(purpose)
		items[item.TransactionID] = append(items[item.TransactionID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("load_transaction_items", "トランザクション明細スキャンに失敗しました", err)
	}
	return items, nil
}

func scanTransaction(row rowScanner) (*inventory.StockTransaction, error) {
	var (
		transaction              inventory.StockTransaction
		approvedBy, rejectReason sql.NullString
		approvedAt, rejectedAt   sql.NullTime
	)
	err := row.Scan(
		&transaction.ID,
		&transaction.TransactionNumber,
		&transaction.Type,
		&transaction.Status,
		&transaction.Description,
		&transaction.Reference,
		&transaction.AttachmentURL,
		&transaction.RequestedBy,
		&approvedBy,
		&transaction.RequestedAt,
		&approvedAt,
		&rejectedAt,
		&rejectReason,
		&transaction.CreatedAt,
		&transaction.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrTransactionNotFound
		}
		return nil, mapError("scan_transaction", "トランザクション取得に失敗しました", err)
	}
	transaction.ApprovedBy = nullString(approvedBy)
	transaction.ApprovedAt = nullTime(approvedAt)
	transaction.RejectedAt = nullTime(rejectedAt)
	transaction.RejectReason = nullString(rejectReason)
	return &transaction, nil
}

// ヘルパー関数

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func requireAffected(result sql.Result, op string, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError(op, "更新行数の取得に失敗しました", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}

// mapError converts driver errors into ledger errors; unknown errors become StorageError
func mapError(op, message string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			switch pqErr.Constraint {
			case "stock_transactions_transaction_number_key":
				return inventory.NewStorageError(op, message, inventory.ErrDuplicateTransactionNumber)
			case "items_code_key":
				return inventory.NewStorageError(op, message, inventory.ErrDuplicateItem)
			case "stock_items_item_id_location_key":
				return inventory.NewStorageError(op, message, inventory.ErrDuplicateStockItem)
			}
		case "23514": // check_violation
			if pqErr.Constraint == "transaction_sequences_range_check" {
				return inventory.NewSequenceExhaustedError(pqErr.Detail)
			}
		case "25006": // read_only_sql_transaction
			return inventory.ErrReadOnlyTx
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return inventory.NewConcurrencyError(op, pqErr.Table, pqErr.Message)
		}
	}

	return inventory.NewStorageError(op, message, err)
}

func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
