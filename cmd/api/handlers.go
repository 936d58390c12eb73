package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiStockLedger/pkg/inventory"
)

// Handlers holds HTTP handlers for the stock ledger API
// 在庫台帳API用のHTTPハンドラーを保持
type Handlers struct {
	ledger     inventory.LedgerManager
	stockItems inventory.StockItemManager
	tracker    *inventory.TrackingManager
	kpi        *inventory.KPIAggregator
	valuation  *inventory.ValuationEngine
	store      inventory.Store
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(manager *inventory.Manager, store inventory.Store, ledgerConfig *inventory.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		ledger:     manager,
		stockItems: manager,
		tracker:    inventory.NewTrackingManager(store, logger, ledgerConfig),
		kpi:        inventory.NewKPIAggregator(store, logger, ledgerConfig),
		valuation:  inventory.NewValuationEngine(store, logger),
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ApproveRequest represents request to approve a transaction
// 承認リクエストを表現
type ApproveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// RejectRequest represents request to reject a transaction
// 却下リクエストを表現
type RejectRequest struct {
	Reason *string `json:"reason"`
}

// ThresholdsRequest represents request to update stock thresholds
// 在庫閾値更新リクエストを表現
type ThresholdsRequest struct {
	MinQuantity *decimal.Decimal `json:"min_quantity"`
	MaxQuantity *decimal.Decimal `json:"max_quantity"`
}

// CreateStockItemRequest represents request to create a stock item
// 在庫品目作成リクエストを表現
type CreateStockItemRequest struct {
	ItemID      string           `json:"item_id"`
	Location    string           `json:"location"`
	MinQuantity *decimal.Decimal `json:"min_quantity"`
	MaxQuantity *decimal.Decimal `json:"max_quantity"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("ヘルスチェックに失敗しました", zap.Error(err))
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.sendJSON(w, code, APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": h.now(),
			"service":   "zaiStockLedger",
		},
	})
}

// 品目・在庫品目

// CreateCatalogItem handles catalog item creation
// 品目マスタ作成リクエストを処理
func (h *Handlers) CreateCatalogItem(w http.ResponseWriter, r *http.Request) {
	var item inventory.CatalogItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	if err := h.stockItems.CreateCatalogItem(r.Context(), &item); err != nil {
		h.handleError(w, err)
		return
	}

	h.sendCreated(w, item)
}

// CreateStockItem handles stock item creation
// 在庫品目作成リクエストを処理
func (h *Handlers) CreateStockItem(w http.ResponseWriter, r *http.Request) {
	var req CreateStockItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	stockItem := &inventory.StockItem{
		ItemID:          req.ItemID,
		Location:        req.Location,
		CurrentQuantity: decimal.Zero,
		MinQuantity:     req.MinQuantity,
		MaxQuantity:     req.MaxQuantity,
	}
	if err := h.stockItems.CreateStockItem(r.Context(), stockItem); err != nil {
		h.handleError(w, err)
		return
	}

	h.sendCreated(w, stockItem)
}

// ListStockItems handles stock item listing
// 在庫品目一覧リクエストを処理
func (h *Handlers) ListStockItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.StockItemFilter{
		ActiveOnly: q.Get("include_inactive") != "true",
		ItemID:     q.Get("item_id"),
		Location:   q.Get("location"),
		Limit:      queryInt(r, "limit", 100),
		Offset:     queryInt(r, "offset", 0),
	}

	stockItems, err := h.stockItems.ListStockItems(r.Context(), filter)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, stockItems)
}

// GetStockItem handles stock item lookup
// 在庫品目取得リクエストを処理
func (h *Handlers) GetStockItem(w http.ResponseWriter, r *http.Request) {
	stockItem, err := h.stockItems.GetStockItem(r.Context(), mux.Vars(r)["stockItemId"])
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, stockItem)
}

// UpdateThresholds handles min/max quantity updates
// 在庫閾値更新リクエストを処理
func (h *Handlers) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var req ThresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	stockItem, err := h.stockItems.UpdateStockItemThresholds(r.Context(), mux.Vars(r)["stockItemId"], req.MinQuantity, req.MaxQuantity)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, stockItem)
}

// DeactivateStockItem handles stock item soft deletion
// 在庫品目無効化リクエストを処理
func (h *Handlers) DeactivateStockItem(w http.ResponseWriter, r *http.Request) {
	if err := h.stockItems.DeactivateStockItem(r.Context(), mux.Vars(r)["stockItemId"]); err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, map[string]string{
		"message": "在庫品目を無効化しました",
	})
}

// GetBatchesByStockItem handles batch listing for a stock item
// 在庫品目のバッチ一覧リクエストを処理
func (h *Handlers) GetBatchesByStockItem(w http.ResponseWriter, r *http.Request) {
	batches, err := h.tracker.GetBatchesByStockItem(r.Context(), mux.Vars(r)["stockItemId"])
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, batches)
}

// GetAuditTrail handles audit trail requests (from/to as RFC3339, default last 30 days)
// 監査証跡リクエストを処理
func (h *Handlers) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	to := h.now()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			h.sendError(w, http.StatusBadRequest, "開始日時の形式が不正です")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			h.sendError(w, http.StatusBadRequest, "終了日時の形式が不正です")
			return
		}
	}

	trail, err := h.tracker.GetAuditTrail(r.Context(), mux.Vars(r)["stockItemId"], from, to)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, trail)
}

// トランザクション

// CreateTransaction handles stock transaction creation
// 在庫トランザクション作成リクエストを処理
func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req inventory.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = userFromRequest(r)
	}

	transaction, err := h.ledger.CreateTransaction(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendCreated(w, transactionView(transaction))
}

// ListTransactions handles transaction listing
// トランザクション一覧リクエストを処理
func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.TransactionFilter{
		Status:      inventory.TransactionStatus(q.Get("status")),
		Type:        inventory.TransactionType(q.Get("type")),
		StockItemID: q.Get("stock_item_id"),
		Limit:       queryInt(r, "limit", 100),
		Offset:      queryInt(r, "offset", 0),
	}

	transactions, err := h.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		h.handleError(w, err)
		return
	}

	views := make([]TransactionView, 0, len(transactions))
	for i := range transactions {
		views = append(views, transactionView(&transactions[i]))
	}
	h.sendSuccess(w, views)
}

// GetTransaction handles transaction lookup
// トランザクション取得リクエストを処理
func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.ledger.GetTransaction(r.Context(), mux.Vars(r)["transactionId"])
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, transactionView(transaction))
}

// ApproveTransaction handles transaction approval
// トランザクション承認リクエストを処理
func (h *Handlers) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
			return
		}
	}
	if req.ApprovedBy == "" {
		req.ApprovedBy = userFromRequest(r)
	}

	transaction, err := h.ledger.ApproveTransaction(r.Context(), mux.Vars(r)["transactionId"], req.ApprovedBy)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, transactionView(transaction))
}

// RejectTransaction handles transaction rejection
// トランザクション却下リクエストを処理
func (h *Handlers) RejectTransaction(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
			return
		}
	}

	ctx := inventory.ContextWithUser(r.Context(), userFromRequest(r))
	transaction, err := h.ledger.RejectTransaction(ctx, mux.Vars(r)["transactionId"], req.Reason)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, transactionView(transaction))
}

// TransactionView adds the computed total value to a transaction
// 合計金額付きのトランザクション表現
type TransactionView struct {
	*inventory.StockTransaction
	TotalValue decimal.Decimal `json:"total_value"`
}

func transactionView(t *inventory.StockTransaction) TransactionView {
	return TransactionView{StockTransaction: t, TotalValue: t.TotalValue()}
}

// KPI・照会

// GetKPISummary handles KPI summary requests
// KPIサマリーリクエストを処理
func (h *Handlers) GetKPISummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.kpi.Summary(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, summary)
}

// GetLowStockItems handles low stock listing
// 低在庫品目一覧リクエストを処理
func (h *Handlers) GetLowStockItems(w http.ResponseWriter, r *http.Request) {
	stockItems, err := h.kpi.GetLowStockItems(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, stockItems)
}

// GetExpiringBatches handles expiring batch listing (?days=N)
// 期限切れ間近バッチ一覧リクエストを処理
func (h *Handlers) GetExpiringBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.kpi.GetExpiringBatches(r.Context(), queryInt(r, "days", 0))
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, batches)
}

// GetExpiredBatches handles expired batch listing
// 期限切れバッチ一覧リクエストを処理
func (h *Handlers) GetExpiredBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.tracker.GetExpiredBatches(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, batches)
}

// GetValuation handles valuation report requests (?location=)
// 在庫評価レポートリクエストを処理
func (h *Handlers) GetValuation(w http.ResponseWriter, r *http.Request) {
	report, err := h.valuation.Report(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.sendSuccess(w, report)
}

// ヘルパーメソッド

// statusFor maps ledger errors to HTTP status codes
// 台帳エラーをHTTPステータスコードに変換
func statusFor(err error) int {
	var (
		concurrencyErr *inventory.ConcurrencyError
		ruleErr        *inventory.BusinessRuleError
	)
	switch {
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrInvalidState),
		errors.Is(err, inventory.ErrDuplicateTransactionNumber),
		errors.Is(err, inventory.ErrDuplicateItem),
		errors.Is(err, inventory.ErrDuplicateStockItem),
		errors.Is(err, inventory.ErrVersionMismatch),
		errors.As(err, &concurrencyErr):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.As(err, &ruleErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) handleError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("リクエスト処理に失敗しました", zap.Error(err))
		h.sendError(w, status, "内部エラーが発生しました")
		return
	}
	h.sendError(w, status, err.Error())
}

// userFromRequest reads the acting user from X-User-ID
func userFromRequest(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return userID
	}
	return "api_user"
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.sendJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handlers) sendCreated(w http.ResponseWriter, data interface{}) {
	h.sendJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, APIResponse{Success: false, Error: message})
}

func (h *Handlers) sendJSON(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}
