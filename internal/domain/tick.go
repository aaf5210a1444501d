package domain

import "time"

// Tick is a single decoded price update from the market-data feed. It is
// produced by the Feed Manager, consumed by the Evaluator, and never
// persisted.
type Tick struct {
	InstrumentToken uint32
	LastPrice       float64
	Timestamp       time.Time
}
