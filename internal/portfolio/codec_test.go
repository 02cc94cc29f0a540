package portfolio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

func samplePositions() []models.Position {
	return []models.Position{
		{Ticker: "AAPL", Shares: 10, CostPrice: 150.25, BuyDate: "2023-03-14"},
		{Ticker: "7203.T", Shares: 100, CostPrice: 2345.5},
		{Ticker: "MSFT", Shares: 0.125, CostPrice: 0, BuyDate: "2021-12-31"},
		{Ticker: "AAPL", Shares: 5, CostPrice: 0.1 + 0.2},
	}
}

func TestLink_RoundTrip(t *testing.T) {
	in := samplePositions()
	token, err := EncodeLink(in)
	require.NoError(t, err)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")

	out, err := DecodeLink(token)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLink_EmptyRoundTrip(t *testing.T) {
	for _, in := range [][]models.Position{nil, {}} {
		token, err := EncodeLink(in)
		require.NoError(t, err)

		out, err := DecodeLink(token)
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	}
}

func TestLink_AcceptsPlainJSON(t *testing.T) {
	raw := `[{"ticker":"aapl","shares":10,"costPrice":150}]`
	for _, token := range []string{raw, url.QueryEscape(raw)} {
		out, err := DecodeLink(token)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "AAPL", out[0].Ticker)
	}
}

func TestLink_RejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"not base64":     "***",
		"not json":       "bm90IGpzb24",
		"invalid record": mustEncodeRaw(t, `[{"ticker":"AAPL","shares":-1,"costPrice":1}]`),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeLink(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInputValidation), "got %v", err)
		})
	}
}

func mustEncodeRaw(t *testing.T, raw string) string {
	t.Helper()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func TestShareURL(t *testing.T) {
	u, err := ShareURL("https://folio.example/app", samplePositions())
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	out, err := DecodeLink(parsed.Query().Get(LinkParam))
	require.NoError(t, err)
	assert.Equal(t, samplePositions(), out)

	out, err = DecodeLink(TokenFromURL(u))
	require.NoError(t, err)
	assert.Equal(t, samplePositions(), out)
}

func TestTokenFromURL_PassesThroughBareToken(t *testing.T) {
	token, err := EncodeLink(samplePositions())
	require.NoError(t, err)
	assert.Equal(t, token, TokenFromURL(token))
	assert.Equal(t, "https://x.example/?other=1", TokenFromURL("https://x.example/?other=1"))
}

func TestCSV_RoundTrip(t *testing.T) {
	in := samplePositions()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), "ticker,shares,cost_price,buy_date\n"))

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCSV_EmptyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestCSV_OptionalBuyDateColumnAndOrder(t *testing.T) {
	in := "shares,ticker,cost_price\n10,aapl,150\n\n5,msft,300\n"
	out, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, models.Position{Ticker: "AAPL", Shares: 10, CostPrice: 150}, out[0])
	assert.Equal(t, "MSFT", out[1].Ticker)
}

func TestCSV_InvalidRowRejectsWholeImport(t *testing.T) {
	tests := map[string]string{
		"missing column":   "ticker,shares\nAAPL,10\n",
		"empty file":       "",
		"missing value":    "ticker,shares,cost_price,buy_date\nAAPL,10,150,\nMSFT,,300,\n",
		"short row":        "ticker,shares,cost_price,buy_date\nAAPL,10\n",
		"non-numeric":      "ticker,shares,cost_price\nAAPL,ten,150\n",
		"non-positive qty": "ticker,shares,cost_price\nAAPL,0,150\n",
		"bad date":         "ticker,shares,cost_price,buy_date\nAAPL,1,1,yesterday\n",
		"negative cost":    "ticker,shares,cost_price\nAAPL,1,-5\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := ReadCSV(strings.NewReader(body))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, common.ErrInputValidation), "got %v", err)
		})
	}
}
