package inventory

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DecimalScale is the number of fractional digits stored for quantities and costs
// 数量・金額の小数点以下桁数（NUMERIC(18, 4)）
const DecimalScale = 4

// maxDecimal is the exclusive upper bound of NUMERIC(18, 4)
var maxDecimal = decimal.New(1, 18-DecimalScale)

// CreateTransactionRequest is the input of CreateTransaction
// トランザクション作成リクエスト
type CreateTransactionRequest struct {
	Type          TransactionType        `json:"type" validate:"required"`
	Items         []TransactionItemInput `json:"items" validate:"required,min=1,max=200,dive"`
	RequestedBy   string                 `json:"requested_by" validate:"required,max=255"`
	Description   string                 `json:"description" validate:"max=2000"`
	Reference     string                 `json:"reference" validate:"max=500"`
	AttachmentURL string                 `json:"attachment_url" validate:"omitempty,max=2048"`
}

// TransactionItemInput is one requested line of a transaction
// トランザクション明細の入力
type TransactionItemInput struct {
	StockItemID     string           `json:"stock_item_id" validate:"required,max=255"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	BatchNumber     *string          `json:"batch_number,omitempty" validate:"omitempty,max=255"`
	ExpiryDate      *time.Time       `json:"expiry_date,omitempty"`
	ManufactureDate *time.Time       `json:"manufacture_date,omitempty"`
	Purpose         *string          `json:"purpose,omitempty" validate:"omitempty,max=500"`
	Notes           string           `json:"notes,omitempty" validate:"max=2000"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateCreateTransactionRequest checks a request before any store access
// ストアにアクセスする前にリクエストを検証
func ValidateCreateTransactionRequest(req CreateTransactionRequest) error {
	if err := structValidator().Struct(req); err != nil {
		return translateValidationError(err)
	}

	if !req.Type.IsValid() {
		return NewValidationError("type", "未知のトランザクションタイプです", string(req.Type))
	}
	if strings.TrimSpace(req.RequestedBy) == "" {
		return NewValidationError("requested_by", "申請者が指定されていません", req.RequestedBy)
	}

	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if err := ValidateQuantity(field+".quantity", item.Quantity); err != nil {
			return err
		}
		if item.UnitCost != nil {
			if item.UnitCost.IsNegative() {
				return NewValidationError(field+".unit_cost", "単価は0以上である必要があります", item.UnitCost.String())
			}
			if err := ValidateScale(field+".unit_cost", *item.UnitCost); err != nil {
				return err
			}
		}
		if item.BatchNumber != nil {
			if err := ValidateBatchNumber(field+".batch_number", *item.BatchNumber); err != nil {
				return err
			}
		}
		if item.ExpiryDate != nil && item.ManufactureDate != nil && item.ExpiryDate.Before(*item.ManufactureDate) {
			return NewValidationError(field+".expiry_date", "有効期限が製造日より前になっています",
				fmt.Sprintf("%s < %s", item.ExpiryDate.Format("2006-01-02"), item.ManufactureDate.Format("2006-01-02")))
		}
	}

	return nil
}

// ValidateQuantity 数量が正の値かをバリデーション
func ValidateQuantity(field string, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewValidationError(field, "数量は正の値である必要があります", quantity.String())
	}
	return ValidateScale(field, quantity)
}

// ValidateScale 小数点以下の桁数と桁あふれをバリデーション
func ValidateScale(field string, value decimal.Decimal) error {
	if !value.Equal(value.Round(DecimalScale)) {
		return NewValidationError(field, fmt.Sprintf("小数点以下は%d桁までです", DecimalScale), value.String())
	}
	if value.Abs().GreaterThanOrEqual(maxDecimal) {
		return NewValidationError(field, "値が大きすぎます", value.String())
	}
	return nil
}

// ValidateBatchNumber ロット番号の形式をバリデーション
func ValidateBatchNumber(field, batchNumber string) error {
	if strings.TrimSpace(batchNumber) == "" {
		return NewValidationError(field, "ロット番号が空です", batchNumber)
	}
	if len(batchNumber) > 255 {
		return NewValidationError(field, "ロット番号が長すぎます", batchNumber)
	}
	return nil
}

// ValidateThresholds 最小・最大在庫数をバリデーション
func ValidateThresholds(minQuantity, maxQuantity *decimal.Decimal) error {
	if minQuantity != nil && minQuantity.IsNegative() {
		return NewValidationError("min_quantity", "最小在庫数は0以上である必要があります", minQuantity.String())
	}
	if maxQuantity != nil && maxQuantity.IsNegative() {
		return NewValidationError("max_quantity", "最大在庫数は0以上である必要があります", maxQuantity.String())
	}
	if minQuantity != nil {
		if err := ValidateScale("min_quantity", *minQuantity); err != nil {
			return err
		}
	}
	if maxQuantity != nil {
		if err := ValidateScale("max_quantity", *maxQuantity); err != nil {
			return err
		}
	}
	if minQuantity != nil && maxQuantity != nil && minQuantity.GreaterThan(*maxQuantity) {
		return NewValidationError("min_quantity", "最小在庫数が最大在庫数を超えています",
			fmt.Sprintf("%s > %s", minQuantity.String(), maxQuantity.String()))
	}
	return nil
}

// ValidateCatalogItem 品目マスタをバリデーション
func ValidateCatalogItem(item *CatalogItem) error {
	if item == nil {
		return NewValidationError("item", "品目が指定されていません", "")
	}
	if strings.TrimSpace(item.Code) == "" {
		return NewValidationError("code", "品目コードが空です", item.Code)
	}
	if len(item.Code) > 255 {
		return NewValidationError("code", "品目コードが長すぎます", item.Code)
	}
	if strings.TrimSpace(item.Name) == "" {
		return NewValidationError("name", "品目名が空です", item.Name)
	}
	if len(item.Name) > 500 {
		return NewValidationError("name", "品目名が長すぎます", item.Name)
	}
	return nil
}

func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError("request", "リクエストが不正です", err.Error())
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "CreateTransactionRequest.")
	var message string
	switch fe.Tag() {
	case "required":
		message = "必須項目です"
	case "min":
		message = fmt.Sprintf("%s件以上必要です", fe.Param())
	case "max":
		message = fmt.Sprintf("上限(%s)を超えています", fe.Param())
	default:
		message = fmt.Sprintf("検証ルール %s に違反しています", fe.Tag())
	}
	return NewValidationError(field, message, fmt.Sprintf("%v", fe.Value()))
}
