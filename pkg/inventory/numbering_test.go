package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFormatTransactionNumber(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "STK-20240305-0001", FormatTransactionNumber(day, 1))
	assert.Equal(t, "STK-20240305-0042", FormatTransactionNumber(day, 42))
	assert.Equal(t, "STK-20240305-9999", FormatTransactionNumber(day, 9999))
	assert.Regexp(t, `^STK-\d{8}-\d{4}$`, FormatTransactionNumber(day, 7))
}

func TestParseTransactionNumber(t *testing.T) {
	day, seq, err := ParseTransactionNumber("STK-20241231-0123")
	require.NoError(t, err)
	assert.Equal(t, 123, seq)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), day)

	for _, bad := range []string{"", "STK-2024123-0001", "STK-20241231-1", "ABC-20241231-0001", "STK-20241399-0001", "STK-20241231-0000"} {
		_, _, err := ParseTransactionNumber(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

// TestNumberer_UsesLocalDay はタイムゾーン上の日付で採番されることを確認
func TestNumberer_UsesLocalDay(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	now := time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC) // JSTでは3月16日
	tx := new(MockTx)
	tx.On("NextTransactionSequence", mock.Anything, mock.MatchedBy(func(d time.Time) bool {
		return d.Equal(time.Date(2024, 3, 16, 0, 0, 0, 0, jst))
	})).Return(7, nil)

	numberer := NewNumberer(func() time.Time { return now }, jst)
	number, err := numberer.Next(context.Background(), tx)

	require.NoError(t, err)
	assert.Equal(t, "STK-20240316-0007", number)
	tx.AssertExpectations(t)
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)
}
