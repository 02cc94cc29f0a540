package models

// Position is a single holding as entered by the user or imported.
// BuyDate is an ISO date (YYYY-MM-DD) and may be empty.
type Position struct {
	Ticker    string  `json:"ticker" validate:"required,max=32"`
	Shares    float64 `json:"shares" validate:"gt=0"`
	CostPrice float64 `json:"costPrice" validate:"gte=0"`
	BuyDate   string  `json:"buyDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// CostTotal returns the native-currency cost of the position.
func (p Position) CostTotal() float64 {
	return p.Shares * p.CostPrice
}

// Holding is the derived valuation of one ticker, in reporting currency
// unless a field says otherwise.
type Holding struct {
	Ticker         string  `json:"ticker"`
	Name           string  `json:"name,omitempty"`
	Sector         string  `json:"sector,omitempty"`
	Currency       string  `json:"currency"` // native pricing currency
	Shares         float64 `json:"shares"`
	CostPerShare   float64 `json:"cost_per_share"` // native
	Price          float64 `json:"price"`          // native
	PreviousClose  float64 `json:"previous_close"` // native
	FXRate         float64 `json:"fx_rate"`
	MarketValue    float64 `json:"market_value"`
	CostTotal      float64 `json:"cost_total"`
	PnL            float64 `json:"pnl"`
	PnLPct         float64 `json:"pnl_pct"`
	DailyChange    float64 `json:"daily_change"`
	DailyChangePct float64 `json:"daily_change_pct"`
	DividendYield  float64 `json:"dividend_yield"`
	Weight         float64 `json:"weight"` // fraction of total value
	Priced         bool    `json:"priced"`
}

// Performer names a holding and its P&L percentage.
type Performer struct {
	Ticker string  `json:"ticker"`
	PnLPct float64 `json:"pnl_pct"`
}

// PortfolioSummary aggregates holdings. All amounts in reporting currency.
type PortfolioSummary struct {
	Currency       string     `json:"currency"`
	TotalValue     float64    `json:"total_value"`
	TotalCost      float64    `json:"total_cost"`
	TotalPnL       float64    `json:"total_pnl"`
	TotalPnLPct    float64    `json:"total_pnl_pct"`
	DailyChange    float64    `json:"daily_change"`
	DailyChangePct float64    `json:"daily_change_pct"`
	DividendYield  float64    `json:"dividend_yield"`
	HoldingCount   int        `json:"holding_count"`
	BestPerformer  *Performer `json:"best_performer,omitempty"`
	WorstPerformer *Performer `json:"worst_performer,omitempty"`
}

// Valuation is the output of one valuation pass.
type Valuation struct {
	Holdings []Holding        `json:"holdings"`
	Summary  PortfolioSummary `json:"summary"`
	FXRate   float64          `json:"fx_rate"`
}
