package performance

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedJSONL = `
{"record":"transaction","type":"transfer","currency":"usd","amount":1000,"on":"2024-01-02","account":"A"}
{"record":"transaction","type":"BUY","symbol":"AAA","currency":"USD","quantity":10,"price":"99.5","fee":1,"on":"2024-01-02","account":"A"}
{"record":"transaction","type":"short","symbol":"ES","currency":"USD","quantity":50,"price":4800,"on":"2024-01-03","account":"B","instrument":"future","multiplier":50}
{"record":"holding","symbol":"XYZ","currency":"USD","quantity":50,"cost_basis":5000,"account":"A"}
{"record":"holding","symbol":"ES","currency":"USD","direction":"short","quantity":50,"account":"B","instrument":"future"}
`

func TestDecodeFeed(t *testing.T) {
	feed, err := DecodeFeed(strings.NewReader(feedJSONL))
	require.NoError(t, err)

	require.Len(t, feed.Transactions, 3)
	require.Len(t, feed.Holdings, 2)

	dep := feed.Transactions[0]
	assert.Equal(t, Transfer, dep.Type)
	assert.Equal(t, "USD", dep.Currency)
	assertMoney(t, USD(1000), dep.Amount)

	b := feed.Transactions[1]
	assert.Equal(t, Buy, b.Type)
	assert.Equal(t, Equity, b.InstrumentType, "defaults to equity")
	assertMoney(t, USD(99.5), b.Price)
	assertMoney(t, USD(1), b.Fee)
	assertQuantity(t, Q(1), b.Multiplier)
	assert.Equal(t, day("2024-01-02"), b.When)

	fut := feed.Transactions[2]
	assert.Equal(t, Short, fut.Type)
	assert.True(t, fut.InstrumentType.IsDerivative())
	assertQuantity(t, Q(50), fut.Multiplier)

	assert.Equal(t, ShortSide, feed.Holdings[1].Direction)
	assertMoney(t, USD(5000), feed.Holdings[0].CostBasis)
	assert.Equal(t, []string{"A", "B"}, feed.Accounts())
}

func TestDecodeFeed_Errors(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"record":`,
		"unknown record": `{"record":"price"}`,
		"unknown type":   `{"record":"transaction","type":"split","currency":"USD","on":"2024-01-02"}`,
		"bad direction":  `{"record":"holding","symbol":"A","currency":"USD","direction":"up"}`,
		"bad date":       `{"record":"transaction","type":"buy","currency":"USD","on":"yesterday"}`,
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFeed(strings.NewReader(line))
			assert.Error(t, err)
		})
	}
}

func TestEncodeFeed(t *testing.T) {
	feed, err := DecodeFeed(strings.NewReader(feedJSONL))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeFeed(&buf, feed))
	again, err := DecodeFeed(&buf)
	require.NoError(t, err)

	assert.Len(t, again.Transactions, len(feed.Transactions))
	assert.Len(t, again.Holdings, len(feed.Holdings))
	assert.Equal(t, feed.Accounts(), again.Accounts())
	assertMoney(t, feed.Transactions[1].Price, again.Transactions[1].Price)
}
