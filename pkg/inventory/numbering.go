package inventory

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// TransactionNumberPrefix is the fixed prefix of every transaction number
	TransactionNumberPrefix = "STK"

	transactionNumberDateLayout = "20060102"
	maxDailySequence            = 9999
)

var transactionNumberPattern = regexp.MustCompile(`^STK-(\d{8})-(\d{4})$`)

// Numberer assigns date-scoped transaction numbers (STK-YYYYMMDD-NNNN)
// 日付単位の伝票番号を採番
type Numberer struct {
	now      func() time.Time
	location *time.Location
}

// NewNumberer creates a numberer using the given clock and time zone
// 時計とタイムゾーンを指定して採番器を作成
func NewNumberer(now func() time.Time, location *time.Location) *Numberer {
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.Local
	}
	return &Numberer{now: now, location: location}
}

// Next reserves the next number for the current day inside tx.
// The counter row stays locked until tx ends, so concurrent creators on the
// same day are serialized by the store.
func (n *Numberer) Next(ctx context.Context, tx Tx) (string, error) {
	day := StartOfDay(n.now(), n.location)
	seq, err := tx.NextTransactionSequence(ctx, day)
	if err != nil {
		return "", err
	}
	if seq > maxDailySequence {
		return "", NewSequenceExhaustedError(day.Format("2006-01-02"))
	}
	return FormatTransactionNumber(day, seq), nil
}

// NewSequenceExhaustedError reports that no transaction number is left for day
// 当日の伝票番号枯渇エラーを作成
func NewSequenceExhaustedError(day string) *BusinessRuleError {
	return NewBusinessRuleError("daily_sequence_exhausted", "本日の伝票番号が上限に達しました", day)
}

// FormatTransactionNumber renders STK-YYYYMMDD-NNNN
// 伝票番号を整形
func FormatTransactionNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", TransactionNumberPrefix, day.Format(transactionNumberDateLayout), seq)
}

// ParseTransactionNumber splits a transaction number into its date and sequence
// 伝票番号を日付と連番に分解
func ParseTransactionNumber(number string) (time.Time, int, error) {
	m := transactionNumberPattern.FindStringSubmatch(number)
	if m == nil {
		return time.Time{}, 0, NewValidationError("transaction_number", "伝票番号の形式が不正です", number)
	}
	day, err := time.Parse(transactionNumberDateLayout, m[1])
	if err != nil {
		return time.Time{}, 0, NewValidationError("transaction_number", "伝票番号の日付が不正です", number)
	}
	seq, _ := strconv.Atoi(m[2])
	if seq == 0 {
		return time.Time{}, 0, NewValidationError("transaction_number", "伝票番号の連番は0001から始まります", number)
	}
	return day, seq, nil
}

// StartOfDay truncates t to midnight in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
