package domain

import "time"

// NFOInstrument is a single derivatives contract on an underlying cash
// symbol, used to resolve which futures contract a webhook signal for the
// cash symbol should actually trade.
type NFOInstrument struct {
	Underlying      string
	TradingSymbol   string
	Exchange        string
	InstrumentToken uint32
	Expiry          time.Time
	LotSize         int
}
