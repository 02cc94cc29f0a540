package portfolio

import (
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// Portfolio is an ordered position list. Duplicate tickers are allowed here
// and collapsed by Merged before any aggregation.
type Portfolio struct {
	positions []models.Position
}

// New builds a portfolio, rejecting the whole list if any position is invalid.
func New(positions ...models.Position) (*Portfolio, error) {
	p := &Portfolio{positions: make([]models.Position, 0, len(positions))}
	for _, pos := range positions {
		if err := p.Add(pos); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Positions returns a copy of the positions in input order.
func (p *Portfolio) Positions() []models.Position {
	out := make([]models.Position, len(p.positions))
	copy(out, p.positions)
	return out
}

// Len returns the number of positions.
func (p *Portfolio) Len() int {
	return len(p.positions)
}

// Add validates and appends a position.
func (p *Portfolio) Add(pos models.Position) error {
	pos.Ticker = NormalizeTicker(pos.Ticker)
	if err := ValidatePosition(pos); err != nil {
		return err
	}
	p.positions = append(p.positions, pos)
	return nil
}

// Remove deletes the position at index.
func (p *Portfolio) Remove(index int) error {
	if index < 0 || index >= len(p.positions) {
		return common.NewError(common.KindInputValidation, "portfolio.Remove", "index %d out of range [0, %d)", index, len(p.positions))
	}
	p.positions = append(p.positions[:index], p.positions[index+1:]...)
	return nil
}

// RemoveTicker deletes every position for ticker and returns how many were removed.
func (p *Portfolio) RemoveTicker(ticker string) int {
	ticker = NormalizeTicker(ticker)
	kept := p.positions[:0]
	removed := 0
	for _, pos := range p.positions {
		if pos.Ticker == ticker {
			removed++
			continue
		}
		kept = append(kept, pos)
	}
	p.positions = kept
	return removed
}

// Replace swaps the position at index for a validated replacement.
func (p *Portfolio) Replace(index int, pos models.Position) error {
	if index < 0 || index >= len(p.positions) {
		return common.NewError(common.KindInputValidation, "portfolio.Replace", "index %d out of range [0, %d)", index, len(p.positions))
	}
	pos.Ticker = NormalizeTicker(pos.Ticker)
	if err := ValidatePosition(pos); err != nil {
		return err
	}
	p.positions[index] = pos
	return nil
}

// Merged returns the positions with duplicate tickers collapsed.
func (p *Portfolio) Merged() []models.Position {
	return Merge(p.positions)
}

// Tickers returns the distinct tickers in first-appearance order.
func (p *Portfolio) Tickers() []string {
	merged := p.Merged()
	out := make([]string, len(merged))
	for i, m := range merged {
		out[i] = m.Ticker
	}
	return out
}
