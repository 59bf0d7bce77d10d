package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeWeightedAverage(t *testing.T) {
	t1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	s := Summarize(SideSell, []Trade{
		{Price: d("100"), Amount: d("1"), Date: t1},
		{Price: d("110"), Amount: d("3"), Date: t2},
	})

	assert.True(t, s.Price.Equal(d("107.5")), "got %s", s.Price)
	assert.True(t, s.Amount.Equal(d("4")))
	assert.Equal(t, 2, s.Orders)
	assert.Equal(t, SideSell, s.Side)
	assert.Equal(t, t2, s.Date)
	assert.Nil(t, s.Fees)
	assert.False(t, s.FeePercent.Valid)
}

func TestSummarizeFees(t *testing.T) {
	s := Summarize(SideBuy, []Trade{
		{Price: d("10"), Amount: d("1"), Fees: map[string]decimal.Decimal{"BNB": d("0.01")}, FeePercent: decimal.NewNullDecimal(d("0.1"))},
		{Price: d("10"), Amount: d("3"), Fees: map[string]decimal.Decimal{"BNB": d("0.02"), "USDT": d("1")}, FeePercent: decimal.NewNullDecimal(d("0.2"))},
		{Price: d("10"), Amount: d("5"), FeePercent: decimal.NewNullDecimal(decimal.Zero)},
	})

	require.NotNil(t, s.Fees)
	assert.True(t, s.Fees["BNB"].Equal(d("0.03")))
	assert.True(t, s.Fees["USDT"].Equal(d("1")))

	// 零费率不参与加权
	require.True(t, s.FeePercent.Valid)
	assert.True(t, s.FeePercent.Decimal.Equal(d("0.175")), "got %s", s.FeePercent.Decimal)
}

func TestSummarizeZeroFeePercentStillValid(t *testing.T) {
	s := Summarize(SideBuy, []Trade{
		{Price: d("10"), Amount: d("1"), FeePercent: decimal.NewNullDecimal(decimal.Zero)},
	})
	require.True(t, s.FeePercent.Valid)
	assert.True(t, s.FeePercent.Decimal.IsZero())
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(SideBuy, nil)
	assert.True(t, s.Price.IsZero())
	assert.True(t, s.Amount.IsZero())
	assert.Equal(t, 0, s.Orders)
	assert.True(t, s.Date.IsZero())
}

func TestSummaryFetchesEveryFilledSuborder(t *testing.T) {
	ex := newScriptedExchange()
	o, _ := openOrder(t, ex, idle)

	o.MovePrice(d("100"))
	ex.expect(t, "cancel").reply <- reply{cancel: CancelResult{FilledAmount: d("4")}}
	ex.expect(t, "submit").reply <- reply{id: "S2"}
	waitStatus(t, o, StatusOpen)

	o.Cancel()
	ex.expect(t, "cancel").reply <- reply{cancel: CancelResult{FilledAmount: d("2")}}

	g1 := ex.expect(t, "get_order")
	assert.Equal(t, "S1", g1.id)
	g1.reply <- reply{trade: Trade{Price: d("99"), Amount: d("4")}}
	g2 := ex.expect(t, "get_order")
	assert.Equal(t, "S2", g2.id)
	g2.reply <- reply{trade: Trade{Price: d("100"), Amount: d("2")}}

	s, err := wait(t, o)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status())
	assert.Equal(t, 2, s.Orders)
	assert.True(t, s.Amount.Equal(d("6")))
	assert.True(t, s.Price.Equal(d("596").Div(d("6"))))
}
