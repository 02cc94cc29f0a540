package portfolio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// CSV column names
const (
	ColTicker    = "ticker"
	ColShares    = "shares"
	ColCostPrice = "cost_price"
	ColBuyDate   = "buy_date"
)

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{ColTicker, ColShares, ColCostPrice, ColBuyDate}

// WriteCSV writes positions with the standard header. Numbers use the
// shortest representation that round-trips exactly.
func WriteCSV(w io.Writer, positions []models.Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, p := range positions {
		record := []string{
			p.Ticker,
			strconv.FormatFloat(p.Shares, 'g', -1, 64),
			strconv.FormatFloat(p.CostPrice, 'g', -1, 64),
			p.BuyDate,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a position table. Columns may appear in any order and
// buy_date may be omitted. Any row with a missing or invalid required value
// fails the whole import.
func ReadCSV(r io.Reader) ([]models.Position, error) {
	const op = "portfolio.ReadCSV"

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, common.NewError(common.KindInputValidation, op, "empty file, expected header %s", strings.Join(CSVHeader, ","))
	}
	if err != nil {
		return nil, common.WrapError(common.KindInputValidation, op, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		cols[name] = i
	}
	for _, required := range []string{ColTicker, ColShares, ColCostPrice} {
		if _, ok := cols[required]; !ok {
			return nil, common.NewError(common.KindInputValidation, op, "missing required column %q", required)
		}
	}

	positions := []models.Position{}
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, common.WrapError(common.KindInputValidation, op, err)
		}
		if isBlank(record) {
			continue
		}

		p, err := parseRecord(record, cols)
		if err != nil {
			return nil, common.NewError(common.KindInputValidation, op, "row %d: %v", line, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func parseRecord(record []string, cols map[string]int) (models.Position, error) {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return "", false
		}
		v := strings.TrimSpace(record[i])
		return v, v != ""
	}

	ticker, ok := field(ColTicker)
	if !ok {
		return models.Position{}, fmt.Errorf("missing %s", ColTicker)
	}
	sharesStr, ok := field(ColShares)
	if !ok {
		return models.Position{}, fmt.Errorf("missing %s", ColShares)
	}
	costStr, ok := field(ColCostPrice)
	if !ok {
		return models.Position{}, fmt.Errorf("missing %s", ColCostPrice)
	}

	shares, err := strconv.ParseFloat(sharesStr, 64)
	if err != nil {
		return models.Position{}, fmt.Errorf("invalid %s %q", ColShares, sharesStr)
	}
	cost, err := strconv.ParseFloat(costStr, 64)
	if err != nil {
		return models.Position{}, fmt.Errorf("invalid %s %q", ColCostPrice, costStr)
	}
	buyDate, _ := field(ColBuyDate)

	return NewPosition(ticker, shares, cost, buyDate)
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
