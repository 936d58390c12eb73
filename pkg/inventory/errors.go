package inventory

import (
	"errors"
	"fmt"
)

// Common inventory errors
// 共通の在庫エラー定義

var (
	// ErrNotFound is the root of every "does not exist" error
	// 対象が存在しない場合の共通エラー
	ErrNotFound = errors.New("対象が見つかりません")

	// ErrTransactionNotFound is returned when a stock transaction doesn't exist
	// 在庫トランザクションが存在しない場合のエラー
	ErrTransactionNotFound = fmt.Errorf("トランザクション: %w", ErrNotFound)

	// ErrStockItemNotFound is returned when a stock item doesn't exist
	// 在庫品目が存在しない場合のエラー
	ErrStockItemNotFound = fmt.Errorf("在庫品目: %w", ErrNotFound)

	// ErrItemNotFound is returned when a catalog item doesn't exist
	// 品目マスタが存在しない場合のエラー
	ErrItemNotFound = fmt.Errorf("品目: %w", ErrNotFound)

	// ErrBatchNotFound is returned when a batch doesn't exist
	// バッチが存在しない場合のエラー
	ErrBatchNotFound = fmt.Errorf("バッチ: %w", ErrNotFound)

	// ErrInvalidState is returned when a transaction is not in the required status
	// トランザクションが要求されたステータスでない場合のエラー
	ErrInvalidState = errors.New("トランザクションのステータスが不正です")

	// ErrValidation is the root of every input validation error
	// 入力値バリデーションエラーの共通エラー
	ErrValidation = errors.New("入力値が不正です")

	// ErrInsufficientStock is returned when batches cannot cover a withdrawal
	// バッチ残数が出庫数量に足りない場合のエラー
	ErrInsufficientStock = errors.New("在庫が不足しています")

	// ErrDuplicateTransactionNumber is returned when a transaction number collides
	// 伝票番号が重複した場合のエラー
	ErrDuplicateTransactionNumber = errors.New("伝票番号が重複しています")

	// ErrDuplicateItem is returned when trying to create an item that already exists
	// 既に存在する品目を作成しようとした場合のエラー
	ErrDuplicateItem = errors.New("品目は既に存在します")

	// ErrDuplicateStockItem is returned when the item already has a stock row at the location
	// 同一保管場所に在庫品目が既に存在する場合のエラー
	ErrDuplicateStockItem = errors.New("在庫品目は既に存在します")

	// ErrVersionMismatch is returned when optimistic locking fails
	// 楽観的ロック失敗時のエラー
	ErrVersionMismatch = errors.New("バージョンが一致しません。他のユーザーによって更新されています")

	// ErrReadOnlyTx is returned when a write is attempted in a read-only unit of work
	// 読み取り専用トランザクションで書き込みを行った場合のエラー
	ErrReadOnlyTx = errors.New("読み取り専用トランザクションでは更新できません")
)

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StateError represents an operation attempted on a transaction in the wrong status
// 不正なステータスでの操作を表現
type StateError struct {
	TransactionID string            `json:"transaction_id"` // トランザクションID
	Status        TransactionStatus `json:"status"`         // 現在のステータス
	Operation     string            `json:"operation"`      // 操作名
}

func (e StateError) Error() string {
	return fmt.Sprintf("ステータスエラー [%s]: トランザクション %s は %s のため実行できません", e.Operation, e.TransactionID, e.Status)
}

func (e StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// BusinessRuleError represents a business rule violation
// ビジネスルール違反を表現
type BusinessRuleError struct {
	Rule    string `json:"rule"`    // ルール名
	Message string `json:"message"` // エラーメッセージ
	Context string `json:"context"` // コンテキスト情報
}

func (e BusinessRuleError) Error() string {
	return fmt.Sprintf("ビジネスルール違反 [%s]: %s (コンテキスト: %s)", e.Rule, e.Message, e.Context)
}

// ConcurrencyError represents a concurrency-related error
// 同時実行関連のエラーを表現
type ConcurrencyError struct {
	Operation string `json:"operation"` // 操作名
	Resource  string `json:"resource"`  // リソース
	Message   string `json:"message"`   // エラーメッセージ
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("同時実行エラー [%s:%s]: %s", e.Operation, e.Resource, e.Message)
}

// StorageError represents a storage layer error
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e StorageError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewStateError creates a new state error
// 新しいステータスエラーを作成
func NewStateError(transactionID string, status TransactionStatus, operation string) *StateError {
	return &StateError{
		TransactionID: transactionID,
		Status:        status,
		Operation:     operation,
	}
}

// NewBusinessRuleError creates a new business rule error
// 新しいビジネスルールエラーを作成
func NewBusinessRuleError(rule, message, context string) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// NewConcurrencyError creates a new concurrency error
// 新しい同時実行エラーを作成
func NewConcurrencyError(operation, resource, message string) *ConcurrencyError {
	return &ConcurrencyError{
		Operation: operation,
		Resource:  resource,
		Message:   message,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// IsStorageError reports whether err originated in the storage layer
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
