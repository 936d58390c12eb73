// Package inventory provides the stock ledger: transactions, batches and KPIs
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogItem represents a purchasable item (name, unit, category)
// 品目マスタ（名称・単位・カテゴリ）を表現
type CatalogItem struct {
	ID        string    `json:"id" db:"id"`                 // 品目ID
	Code      string    `json:"code" db:"code"`             // 品目コード（ITEM-001など）
	Name      string    `json:"name" db:"name"`             // 品目名
	Unit      string    `json:"unit" db:"unit"`             // 単位（kg、本など）
	Category  string    `json:"category" db:"category"`     // カテゴリ
	CreatedAt time.Time `json:"created_at" db:"created_at"` // 作成日時
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // 更新日時
}

// StockItem represents one trackable inventory item
// 在庫管理対象の品目を表現
type StockItem struct {
	ID              string           `json:"id" db:"id"`                             // 在庫品目ID
	ItemID          string           `json:"item_id" db:"item_id"`                   // 品目マスタID
	Item            *CatalogItem     `json:"item,omitempty" db:"-"`                  // 品目マスタ
	CurrentQuantity decimal.Decimal  `json:"current_quantity" db:"current_quantity"` // 現在数量
	MinQuantity     *decimal.Decimal `json:"min_quantity" db:"min_quantity"`         // 最小在庫数
	MaxQuantity     *decimal.Decimal `json:"max_quantity" db:"max_quantity"`         // 最大在庫数
	AverageCost     *decimal.Decimal `json:"average_cost" db:"average_cost"`         // 平均原価
	LastCost        *decimal.Decimal `json:"last_cost" db:"last_cost"`               // 最終仕入単価
	Location        string           `json:"location" db:"location"`                 // 保管場所
	IsActive        bool             `json:"is_active" db:"is_active"`               // アクティブ状態
	Version         int64            `json:"version" db:"version"`                   // 楽観的ロック用バージョン
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`             // 作成日時
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`             // 更新日時
}

// StockBatch represents a received lot of a stock item
// 入庫ロット（バッチ）を表現
type StockBatch struct {
	ID              string          `json:"id" db:"id"`                             // バッチID
	StockItemID     string          `json:"stock_item_id" db:"stock_item_id"`       // 在庫品目ID
	BatchNumber     *string         `json:"batch_number" db:"batch_number"`         // ロット番号
	ExpiryDate      *time.Time      `json:"expiry_date" db:"expiry_date"`           // 有効期限
	ManufactureDate *time.Time      `json:"manufacture_date" db:"manufacture_date"` // 製造日
	InitialQuantity decimal.Decimal `json:"initial_quantity" db:"initial_quantity"` // 入庫時数量
	CurrentQuantity decimal.Decimal `json:"current_quantity" db:"current_quantity"` // 残数量
	UnitCost        decimal.Decimal `json:"unit_cost" db:"unit_cost"`               // 単価
	TransactionID   string          `json:"transaction_id" db:"transaction_id"`     // 入庫トランザクションID
	Seq             int64           `json:"seq" db:"seq"`                           // 登録順（ストアが採番）
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`             // 作成日時
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`             // 更新日時
}

// StockTransaction represents an inventory movement request
// 在庫移動リクエストを表現
type StockTransaction struct {
	ID                string                 `json:"id" db:"id"`                                 // トランザクションID
	TransactionNumber string                 `json:"transaction_number" db:"transaction_number"` // 伝票番号（STK-YYYYMMDD-NNNN）
	Type              TransactionType        `json:"type" db:"type"`                             // トランザクションタイプ
	Status            TransactionStatus      `json:"status" db:"status"`                         // ステータス
	Description       string                 `json:"description" db:"description"`               // 摘要
	Reference         string                 `json:"reference" db:"reference"`                   // 参照番号（発注書番号など）
	AttachmentURL     string                 `json:"attachment_url" db:"attachment_url"`         // 添付ファイル参照
	RequestedBy       string                 `json:"requested_by" db:"requested_by"`             // 申請者
	ApprovedBy        *string                `json:"approved_by" db:"approved_by"`               // 承認者
	RequestedAt       time.Time              `json:"requested_at" db:"requested_at"`             // 申請日時
	ApprovedAt        *time.Time             `json:"approved_at" db:"approved_at"`               // 承認日時
	RejectedAt        *time.Time             `json:"rejected_at" db:"rejected_at"`               // 却下日時
	RejectReason      *string                `json:"reject_reason" db:"reject_reason"`           // 却下理由
	Items             []StockTransactionItem `json:"items" db:"-"`                               // 明細
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`                 // 作成日時
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`                 // 更新日時
}

// StockTransactionItem represents one line of a stock transaction
// トランザクション明細を表現
type StockTransactionItem struct {
	ID              string           `json:"id" db:"id"`                             // 明細ID
	TransactionID   string           `json:"transaction_id" db:"transaction_id"`     // トランザクションID
	StockItemID     string           `json:"stock_item_id" db:"stock_item_id"`       // 在庫品目ID
	Quantity        decimal.Decimal  `json:"quantity" db:"quantity"`                 // 数量
	UnitCost        *decimal.Decimal `json:"unit_cost" db:"unit_cost"`               // 単価
	TotalCost       *decimal.Decimal `json:"total_cost" db:"total_cost"`             // 金額
	BatchNumber     *string          `json:"batch_number" db:"batch_number"`         // ロット番号（入庫時）
	ExpiryDate      *time.Time       `json:"expiry_date" db:"expiry_date"`           // 有効期限（入庫時）
	ManufactureDate *time.Time       `json:"manufacture_date" db:"manufacture_date"` // 製造日（入庫時）
	Purpose         *string          `json:"purpose" db:"purpose"`                   // 使用目的（出庫時）
	Notes           string           `json:"notes" db:"notes"`                       // 備考
}

// TransactionType defines the type of inventory movement
// 在庫移動のタイプを定義
type TransactionType string

const (
	TransactionTypeReceive     TransactionType = "RECEIVE"      // 入庫
	TransactionTypeWithdraw    TransactionType = "WITHDRAW"     // 出庫
	TransactionTypeAdjustIn    TransactionType = "ADJUST_IN"    // 調整（増）
	TransactionTypeAdjustOut   TransactionType = "ADJUST_OUT"   // 調整（減）
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"  // 移動入庫
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT" // 移動出庫
	TransactionTypeReturn      TransactionType = "RETURN"       // 返品戻し
)

// AllTransactionTypes lists every supported transaction type
func AllTransactionTypes() []TransactionType {
	return []TransactionType{
		TransactionTypeReceive,
		TransactionTypeWithdraw,
		TransactionTypeAdjustIn,
		TransactionTypeAdjustOut,
		TransactionTypeTransferIn,
		TransactionTypeTransferOut,
		TransactionTypeReturn,
	}
}

// IsValid reports whether t is a known transaction type
func (t TransactionType) IsValid() bool {
	for _, known := range AllTransactionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsAutoApproved reports whether the type applies immediately on creation
// 作成時に自動承認されるタイプかどうか
func (t TransactionType) IsAutoApproved() bool {
	switch t {
	case TransactionTypeReceive, TransactionTypeTransferIn, TransactionTypeReturn:
		return true
	}
	return false
}

// Direction returns +1 for types that increase stock and -1 for types that decrease it
// 在庫を増やすタイプは+1、減らすタイプは-1を返す
func (t TransactionType) Direction() int {
	switch t {
	case TransactionTypeWithdraw, TransactionTypeAdjustOut, TransactionTypeTransferOut:
		return -1
	}
	return 1
}

// TransactionStatus defines the approval status of a stock transaction
// 在庫トランザクションの承認ステータスを定義
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"  // 承認待ち
	TransactionStatusApproved TransactionStatus = "APPROVED" // 承認済み
	TransactionStatusRejected TransactionStatus = "REJECTED" // 却下
)

// IsTerminal reports whether no further transition is allowed from s
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusApproved || s == TransactionStatusRejected
}

// KPISummary holds the dashboard counters derived from ledger state
// 在庫ダッシュボード用の集計値
type KPISummary struct {
	TotalItems              int             `json:"total_items"`               // アクティブ品目数
	TotalValue              decimal.Decimal `json:"total_value"`               // 在庫金額合計
	LowStockCount           int             `json:"low_stock_count"`           // 低在庫品目数
	ExpiringSoonCount       int             `json:"expiring_soon_count"`       // 期限切れ間近バッチ数
	PendingTransactionCount int             `json:"pending_transaction_count"` // 承認待ち件数
	TodayReceived           decimal.Decimal `json:"today_received"`            // 本日入庫数量
	TodayWithdrawn          decimal.Decimal `json:"today_withdrawn"`           // 本日出庫数量
	GeneratedAt             time.Time       `json:"generated_at"`              // 集計日時
}

// TotalValue sums the line totals of the transaction
// 明細金額の合計を計算
func (t *StockTransaction) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, item := range t.Items {
		if item.TotalCost != nil {
			total = total.Add(*item.TotalCost)
		}
	}
	return total
}

// IsLowStock reports whether the item is at or below its minimum quantity
// 最小在庫数以下かチェック
func (s *StockItem) IsLowStock() bool {
	if s.MinQuantity == nil {
		return false
	}
	return s.CurrentQuantity.LessThanOrEqual(*s.MinQuantity)
}

// Value returns currentQuantity * averageCost, treating a missing cost as zero
func (s *StockItem) Value() decimal.Decimal {
	if s.AverageCost == nil {
		return decimal.Zero
	}
	return s.CurrentQuantity.Mul(*s.AverageCost)
}

// IsExpired checks if a batch has expired at the given time
// バッチが期限切れかチェック
func (b *StockBatch) IsExpired(now time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return now.After(*b.ExpiryDate)
}

// IsExpiringWithin checks if a batch with remaining stock expires within [now, now+d]
// 指定期間内に期限切れになる残数ありバッチかチェック
func (b *StockBatch) IsExpiringWithin(now time.Time, d time.Duration) bool {
	if b.ExpiryDate == nil || !b.CurrentQuantity.IsPositive() {
		return false
	}
	return !b.ExpiryDate.Before(now) && !b.ExpiryDate.After(now.Add(d))
}

// NewID generates a new entity ID
// 新しいエンティティIDを生成
func NewID() string {
	return uuid.New().String()
}

func stringPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
