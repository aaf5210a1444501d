package domain

import "time"

// ConditionType distinguishes a single-leg trigger from a two-leg
// (stop-loss + target) OCO pair.
type ConditionType string

const (
	ConditionSingle ConditionType = "single"
	ConditionTwoLeg ConditionType = "two-leg"
)

// TransactionType is the side of the order placed when a trigger fires.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// TriggerStatus is the lifecycle state of a trigger. Terminal states
// (Triggered, Failed, Cancelled, Expired) are never mutated again.
type TriggerStatus string

const (
	TriggerActive     TriggerStatus = "active"
	TriggerProcessing TriggerStatus = "processing"
	TriggerTriggered  TriggerStatus = "triggered"
	TriggerFailed     TriggerStatus = "failed"
	TriggerCancelled  TriggerStatus = "cancelled"
	TriggerExpired    TriggerStatus = "expired"
)

// Leg holds the order parameters for one side of a trigger. Leg 1 is
// always present; Leg 2 is only populated for two-leg triggers.
type Leg struct {
	ProductType  string
	TriggerPrice float64
	OrderPrice   float64 // informational only, orders are always MARKET
	Quantity     int
}

// Trigger is a host-monitored conditional order. It is the unit the
// Trigger Index, Tick Evaluator, Order Executor and State Writer all
// operate on, referenced everywhere by ID.
type Trigger struct {
	ID               string
	UserID           string
	BrokerAccountID  string
	Exchange         string
	TradingSymbol    string
	InstrumentToken  uint32
	ConditionType    ConditionType
	TransactionType  TransactionType
	Leg1             Leg
	Leg2             *Leg
	ParentID         *string
	ReferencePrice   *float64
	Status           TriggerStatus
	Metadata         map[string]string

	// ReferencePriceSetAt records when ReferencePrice was last captured.
	// It is refreshed whenever a user edits an active trigger's threshold,
	// so crossing discipline is re-armed from the edit point rather than
	// the original creation point.
	ReferencePriceSetAt *time.Time

	// Terminal-transition audit fields, set once by the State Writer.
	TriggeredLeg     *int
	TriggeredPrice   *float64
	TriggeredOrderID *string
	FailureReason    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTwoLeg reports whether the trigger is an OCO pair.
func (t Trigger) IsTwoLeg() bool {
	return t.ConditionType == ConditionTwoLeg
}

// IsTerminal reports whether the trigger is in a final state.
func (t Trigger) IsTerminal() bool {
	switch t.Status {
	case TriggerTriggered, TriggerFailed, TriggerCancelled, TriggerExpired:
		return true
	default:
		return false
	}
}
