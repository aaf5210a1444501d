package domain

// RiskLimits is the per-user risk configuration the firing pipeline
// consults, after the Evaluator decides to fire and before the Executor
// places the order. The engine reads these and increments daily_trade_count
// after a successful fire; the daily reset (reset_daily_risk_counters) runs
// outside the engine.
type RiskLimits struct {
	UserID          string
	MaxDailyTrades  int
	DailyTradeCount int
	DailyPnLFloor   float64
	DailyPnL        float64
	KillSwitch      bool
	CutoffTime      string // "HH:MM", trades after this time of day are rejected
}

// Breach returns a non-empty reason if the limits are currently violated,
// or an empty string if the user is clear to trade.
func (r RiskLimits) Breach(nowHHMM string) string {
	switch {
	case r.KillSwitch:
		return "kill switch engaged"
	case r.MaxDailyTrades > 0 && r.DailyTradeCount >= r.MaxDailyTrades:
		return "daily trade cap reached"
	case r.DailyPnLFloor < 0 && r.DailyPnL <= r.DailyPnLFloor:
		return "daily loss floor reached"
	case r.CutoffTime != "" && nowHHMM >= r.CutoffTime:
		return "past cutoff time"
	default:
		return ""
	}
}
