// Package portfolio owns the position list: validated construction, the
// explicit duplicate-merge rule, the link and CSV codecs, and sessions.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// NormalizeDate accepts YYYY-MM-DD or an RFC3339 timestamp and returns the
// calendar date. An empty string stays empty.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(dateLayout), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.Format(dateLayout), nil
	}
	return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

// NewPosition builds a validated position with a normalized ticker and date.
func NewPosition(ticker string, shares, costPrice float64, buyDate string) (models.Position, error) {
	date, err := NormalizeDate(buyDate)
	if err != nil {
		return models.Position{}, common.WrapError(common.KindInputValidation, "portfolio.NewPosition", err)
	}
	p := models.Position{
		Ticker:    NormalizeTicker(ticker),
		Shares:    shares,
		CostPrice: costPrice,
		BuyDate:   date,
	}
	if err := ValidatePosition(p); err != nil {
		return models.Position{}, err
	}
	return p, nil
}

// ValidatePosition checks a position against its constraints.
func ValidatePosition(p models.Position) error {
	if math.IsNaN(p.Shares) || math.IsInf(p.Shares, 0) || math.IsNaN(p.CostPrice) || math.IsInf(p.CostPrice, 0) {
		return common.NewError(common.KindInputValidation, "portfolio.Validate", "%s: shares and cost price must be finite", p.Ticker)
	}
	if err := validate.Struct(p); err != nil {
		return common.WrapError(common.KindInputValidation, "portfolio.Validate", describeValidation(p.Ticker, err))
	}
	return nil
}

func describeValidation(ticker string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "gt":
			parts = append(parts, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "gte":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "datetime":
			parts = append(parts, fmt.Sprintf("%s must be a date in %s format", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	if ticker == "" {
		return errors.New(strings.Join(parts, "; "))
	}
	return fmt.Errorf("%s: %s", ticker, strings.Join(parts, "; "))
}

// Merge collapses positions sharing a ticker: shares are summed, the cost
// basis becomes the share-weighted average and the earliest buy date is kept.
// Order follows first appearance.
func Merge(positions []models.Position) []models.Position {
	merged := make([]models.Position, 0, len(positions))
	index := make(map[string]int, len(positions))

	for _, p := range positions {
		key := NormalizeTicker(p.Ticker)
		i, ok := index[key]
		if !ok {
			p.Ticker = key
			index[key] = len(merged)
			merged = append(merged, p)
			continue
		}

		m := &merged[i]
		totalShares := m.Shares + p.Shares
		if totalShares > 0 {
			m.CostPrice = (m.Shares*m.CostPrice + p.Shares*p.CostPrice) / totalShares
		}
		m.Shares = totalShares
		m.BuyDate = earliestDate(m.BuyDate, p.BuyDate)
	}
	return merged
}

func earliestDate(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b < a: // ISO dates order lexically
		return b
	default:
		return a
	}
}
