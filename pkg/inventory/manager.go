package inventory

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Manager implements the stock transaction lifecycle over a Store
// Storeを使った在庫トランザクションのライフサイクル実装
type Manager struct {
	store     Store          // 台帳ストア
	publisher EventPublisher // イベント発行者
	logger    *zap.Logger    // ログ
	config    *Config        // 設定
	numberer  *Numberer      // 伝票番号採番
	allocator *Allocator     // バッチ引当
}

// すべてのインターフェースを実装することを明示
var (
	_ LedgerManager    = (*Manager)(nil)
	_ StockItemManager = (*Manager)(nil)
)

// Config holds configuration for the ledger manager
// 台帳マネージャーの設定を保持
type Config struct {
	ShortfallPolicy   ShortfallPolicy   `yaml:"shortfall_policy"`    // バッチ残数不足時の扱い
	StrictReject      bool              `yaml:"strict_reject"`       // 承認待ち以外の却下を禁止
	AverageCostMethod AverageCostMethod `yaml:"average_cost_method"` // 平均原価の更新方法
	ExpiringSoonDays  int               `yaml:"expiring_soon_days"`  // 期限切れ間近の日数
	DefaultLocation   string            `yaml:"default_location"`    // デフォルト保管場所
	TimeZone          *time.Location    `yaml:"-"`                   // 日付計算用タイムゾーン
	Now               func() time.Time  `yaml:"-"`                   // 時計（テスト用に差し替え可能）
}

// DefaultConfig returns the source-compatible configuration
// 既定の設定を返す
func DefaultConfig() *Config {
	return &Config{
		ShortfallPolicy:   ShortfallPolicyPartial,
		StrictReject:      false,
		AverageCostMethod: AverageCostLastReceipt,
		ExpiringSoonDays:  30,
		DefaultLocation:   "MAIN",
		TimeZone:          time.Local,
		Now:               time.Now,
	}
}

// NewManager creates a new ledger manager
// 新しい台帳マネージャーを作成
func NewManager(store Store, publisher EventPublisher, logger *zap.Logger, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if !config.ShortfallPolicy.IsValid() {
		config.ShortfallPolicy = defaults.ShortfallPolicy
	}
	if !config.AverageCostMethod.IsValid() {
		config.AverageCostMethod = defaults.AverageCostMethod
	}
	if config.ExpiringSoonDays <= 0 {
		config.ExpiringSoonDays = defaults.ExpiringSoonDays
	}
	if config.DefaultLocation == "" {
		config.DefaultLocation = defaults.DefaultLocation
	}
	if config.TimeZone == nil {
		config.TimeZone = defaults.TimeZone
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		store:     store,
		publisher: publisher,
		logger:    logger,
		config:    config,
		numberer:  NewNumberer(config.Now, config.TimeZone),
		allocator: NewAllocator(config.ShortfallPolicy, logger),
	}
}

// CreateTransaction creates a stock transaction and, for auto-approved types,
// applies its ledger effects in the same unit of work
// 在庫トランザクションを作成（自動承認タイプは同一作業単位で在庫に反映）
func (m *Manager) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*StockTransaction, error) {
	if err := ValidateCreateTransactionRequest(req); err != nil {
		return nil, err
	}

	rec := &effectRecorder{}
	var created *StockTransaction
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		created, err = m.createTransaction(ctx, tx, req, rec)
		return err
	})
	if err != nil {
		m.logger.Error("トランザクション作成に失敗しました",
			zap.String("type", string(req.Type)),
			zap.String("requested_by", req.RequestedBy),
			zap.Error(err),
		)
		return nil, err
	}

	m.publishTransactionEvent(ctx, created, created.RequestedBy, eventCreated)
	if created.Status == TransactionStatusApproved {
		m.publishTransactionEvent(ctx, created, created.RequestedBy, eventApproved)
	}
	m.publishEffects(ctx, rec)

	m.logger.Info("トランザクション作成完了",
		zap.String("transaction_id", created.ID),
		zap.String("transaction_number", created.TransactionNumber),
		zap.String("type", string(created.Type)),
		zap.String("status", string(created.Status)),
		zap.Int("items", len(created.Items)),
		zap.String("total_value", created.TotalValue().String()),
	)

	return created, nil
}

// CreateTransactionTx is CreateTransaction inside a caller-owned unit of work.
// No events are published; the caller commits.
// 呼び出し元の作業単位内でトランザクションを作成
func (m *Manager) CreateTransactionTx(ctx context.Context, tx Tx, req CreateTransactionRequest) (*StockTransaction, error) {
	return m.createTransaction(ctx, tx, req, nil)
}

func (m *Manager) createTransaction(ctx context.Context, tx Tx, req CreateTransactionRequest, rec *effectRecorder) (*StockTransaction, error) {
	if err := ValidateCreateTransactionRequest(req); err != nil {
		return nil, err
	}

	// 在庫品目の存在確認
	checked := make(map[string]bool, len(req.Items))
	for _, in := range req.Items {
		if checked[in.StockItemID] {
			continue
		}
		stockItem, err := tx.GetStockItem(ctx, in.StockItemID)
		if err != nil {
			return nil, err
		}
		if !stockItem.IsActive {
			return nil, NewValidationError("stock_item_id", "無効化された在庫品目です", in.StockItemID)
		}
		checked[in.StockItemID] = true
	}

	number, err := m.numberer.Next(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	t := &StockTransaction{
		ID:                NewID(),
		TransactionNumber: number,
		Type:              req.Type,
		Status:            TransactionStatusPending,
		Description:       req.Description,
		Reference:         req.Reference,
		AttachmentURL:     req.AttachmentURL,
		RequestedBy:       req.RequestedBy,
		RequestedAt:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
		Items:             make([]StockTransactionItem, 0, len(req.Items)),
	}

	for _, in := range req.Items {
		line := StockTransactionItem{
			ID:              NewID(),
			TransactionID:   t.ID,
			StockItemID:     in.StockItemID,
			Quantity:        in.Quantity,
			UnitCost:        in.UnitCost,
			BatchNumber:     in.BatchNumber,
			ExpiryDate:      in.ExpiryDate,
			ManufactureDate: in.ManufactureDate,
			Purpose:         in.Purpose,
			Notes:           in.Notes,
		}
		if in.UnitCost != nil {
			line.TotalCost = decimalPtr(in.Quantity.Mul(*in.UnitCost).Round(DecimalScale))
		}
		t.Items = append(t.Items, line)
	}

	autoApprove := req.Type.IsAutoApproved()
	if autoApprove {
		t.Status = TransactionStatusApproved
		t.ApprovedBy = stringPtr(req.RequestedBy)
		t.ApprovedAt = timePtr(now)
	}

	if err := tx.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}

	if autoApprove {
		if err := m.applyLedgerEffects(ctx, tx, t, now, rec); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// ApproveTransaction approves a pending transaction and applies its ledger effects
// 承認待ちトランザクションを承認し在庫に反映
func (m *Manager) ApproveTransaction(ctx context.Context, transactionID, approvedBy string) (*StockTransaction, error) {
	if err := validateActor("approved_by", approvedBy); err != nil {
		return nil, err
	}

	rec := &effectRecorder{}
	var approved *StockTransaction
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		approved, err = m.approveTransaction(ctx, tx, transactionID, approvedBy, rec)
		return err
	})
	if err != nil {
		m.logger.Error("トランザクション承認に失敗しました",
			zap.String("transaction_id", transactionID),
			zap.String("approved_by", approvedBy),
			zap.Error(err),
		)
		return nil, err
	}

	m.publishTransactionEvent(ctx, approved, approvedBy, eventApproved)
	m.publishEffects(ctx, rec)

	m.logger.Info("トランザクション承認完了",
		zap.String("transaction_id", approved.ID),
		zap.String("transaction_number", approved.TransactionNumber),
		zap.String("type", string(approved.Type)),
		zap.String("approved_by", approvedBy),
	)

	return approved, nil
}

// ApproveTransactionTx is ApproveTransaction inside a caller-owned unit of work
// 呼び出し元の作業単位内でトランザクションを承認
func (m *Manager) ApproveTransactionTx(ctx context.Context, tx Tx, transactionID, approvedBy string) (*StockTransaction, error) {
	return m.approveTransaction(ctx, tx, transactionID, approvedBy, nil)
}

func (m *Manager) approveTransaction(ctx context.Context, tx Tx, transactionID, approvedBy string, rec *effectRecorder) (*StockTransaction, error) {
	if err := validateActor("approved_by", approvedBy); err != nil {
		return nil, err
	}

	t, err := tx.GetTransactionForUpdate(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != TransactionStatusPending {
		return nil, NewStateError(t.ID, t.Status, "approve")
	}

	now := m.now()
	t.Status = TransactionStatusApproved
	t.ApprovedBy = stringPtr(approvedBy)
	t.ApprovedAt = timePtr(now)
	t.UpdatedAt = now

	if err := tx.UpdateTransactionStatus(ctx, t); err != nil {
		return nil, err
	}
	if err := m.applyLedgerEffects(ctx, tx, t, now, rec); err != nil {
		return nil, err
	}

	return t, nil
}

// RejectTransaction marks a transaction rejected without touching stock.
// Unless StrictReject is set, any status may be rejected.
// トランザクションを却下（在庫には影響しない）
func (m *Manager) RejectTransaction(ctx context.Context, transactionID string, reason *string) (*StockTransaction, error) {
	var rejected *StockTransaction
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		rejected, err = m.RejectTransactionTx(ctx, tx, transactionID, reason)
		return err
	})
	if err != nil {
		m.logger.Error("トランザクション却下に失敗しました",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		return nil, err
	}

	m.publishTransactionEvent(ctx, rejected, UserFromContext(ctx), eventRejected)

	m.logger.Info("トランザクション却下完了",
		zap.String("transaction_id", rejected.ID),
		zap.String("transaction_number", rejected.TransactionNumber),
		zap.String("type", string(rejected.Type)),
	)

	return rejected, nil
}

// RejectTransactionTx is RejectTransaction inside a caller-owned unit of work
// 呼び出し元の作業単位内でトランザクションを却下
func (m *Manager) RejectTransactionTx(ctx context.Context, tx Tx, transactionID string, reason *string) (*StockTransaction, error) {
	if reason != nil && len(*reason) > 2000 {
		return nil, NewValidationError("reason", "却下理由が長すぎます", *reason)
	}

	t, err := tx.GetTransactionForUpdate(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != TransactionStatusPending {
		if m.config.StrictReject {
			return nil, NewStateError(t.ID, t.Status, "reject")
		}
		m.logger.Warn("承認待ちでないトランザクションを却下します。在庫は戻されません",
			zap.String("transaction_id", t.ID),
			zap.String("status", string(t.Status)),
		)
	}

	now := m.now()
	t.Status = TransactionStatusRejected
	t.RejectedAt = timePtr(now)
	t.RejectReason = reason
	t.UpdatedAt = now

	if err := tx.UpdateTransactionStatus(ctx, t); err != nil {
		return nil, err
	}

	return t, nil
}

// GetTransaction gets a transaction with its items
// 明細付きでトランザクションを取得
func (m *Manager) GetTransaction(ctx context.Context, transactionID string) (*StockTransaction, error) {
	var t *StockTransaction
	err := m.store.WithinReadTx(ctx, func(tx Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, transactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTransactions lists transactions, newest first
// トランザクション一覧を新しい順に取得
func (m *Manager) ListTransactions(ctx context.Context, filter TransactionFilter) ([]StockTransaction, error) {
	if filter.Status != "" && filter.Status != TransactionStatusPending &&
		filter.Status != TransactionStatusApproved && filter.Status != TransactionStatusRejected {
		return nil, NewValidationError("status", "未知のステータスです", string(filter.Status))
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, NewValidationError("type", "未知のトランザクションタイプです", string(filter.Type))
	}
	if filter.Limit <= 0 {
		filter.Limit = 100 // デフォルト値
	}

	var transactions []StockTransaction
	err := m.store.WithinReadTx(ctx, func(tx Tx) error {
		var err error
		transactions, err = tx.ListTransactions(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// ヘルパーメソッド

func (m *Manager) now() time.Time {
	return m.config.Now().In(m.config.TimeZone)
}

func validateActor(field, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return NewValidationError(field, "ユーザーが指定されていません", userID)
	}
	if len(userID) > 255 {
		return NewValidationError(field, "ユーザーIDが長すぎます", userID)
	}
	return nil
}

type contextKey string

const userIDKey contextKey = "user_id"

// ContextWithUser stores the acting user ID in ctx
// コンテキストに操作ユーザーIDを設定
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserFromContext extracts user ID from context
// コンテキストからユーザーIDを取得
func UserFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok && userID != "" {
		return userID
	}
	return "system"
}
