// Package evaluator is the hot-path decision function: (trigger, price)
// -> fire/skip/leg (C2). It performs no I/O and mutates nothing; it only
// ever returns a value, leaving the caller to decide what to do with it.
package evaluator

import "github.com/alanyoungcy/hmtengine/internal/domain"

// Evaluate decides whether trigger fires at ltp, dispatching to the
// single or two-leg semantics based on ConditionType.
func Evaluate(t domain.Trigger, ltp float64) (domain.ExecutionDescriptor, bool) {
	if t.IsTwoLeg() {
		return evaluateTwoLeg(t, ltp)
	}
	return evaluateSingle(t, ltp)
}

// crossed reports whether the reference price R confirms a strict
// crossing of threshold for the given side. When R is nil, the crossing
// condition is skipped entirely (legacy triggers with no reference
// price).
func crossed(side domain.TransactionType, threshold float64, r *float64) bool {
	if r == nil {
		return true
	}
	switch side {
	case domain.TransactionBuy:
		return *r < threshold
	case domain.TransactionSell:
		return *r > threshold
	default:
		return false
	}
}

func evaluateSingle(t domain.Trigger, ltp float64) (domain.ExecutionDescriptor, bool) {
	t1 := t.Leg1.TriggerPrice

	var fires bool
	switch t.TransactionType {
	case domain.TransactionBuy:
		fires = ltp >= t1 && crossed(domain.TransactionBuy, t1, t.ReferencePrice)
	case domain.TransactionSell:
		fires = ltp <= t1 && crossed(domain.TransactionSell, t1, t.ReferencePrice)
	}
	if !fires {
		return domain.ExecutionDescriptor{}, false
	}

	return domain.ExecutionDescriptor{
		TriggerID:     t.ID,
		TriggeredLeg:  1,
		ObservedPrice: ltp,
		OrderPayload:  legPayload(t, t.Leg1, t.TransactionType),
	}, true
}

// evaluateTwoLeg implements OCO semantics. TransactionType denotes the
// exit side. Leg 1 is the stop-loss, leg 2 the target. If both legs would
// fire on the same tick, leg 1 wins.
func evaluateTwoLeg(t domain.Trigger, ltp float64) (domain.ExecutionDescriptor, bool) {
	if t.Leg2 == nil {
		return domain.ExecutionDescriptor{}, false
	}

	t1 := t.Leg1.TriggerPrice
	t2 := t.Leg2.TriggerPrice

	var leg1Fires, leg2Fires bool
	switch t.TransactionType {
	case domain.TransactionSell: // exit of a long: stop down-cross, target up-cross
		leg1Fires = ltp <= t1
		leg2Fires = ltp >= t2
	case domain.TransactionBuy: // exit of a short: stop up-cross, target down-cross
		leg1Fires = ltp >= t1
		leg2Fires = ltp <= t2
	}

	// Leg 1 (stop) crosses in the exit direction; leg 2 (target) crosses
	// the opposite way, so it needs the opposite side's crossing rule.
	if leg1Fires && !crossed(t.TransactionType, t1, t.ReferencePrice) {
		leg1Fires = false
	}
	if leg2Fires && !crossed(opposite(t.TransactionType), t2, t.ReferencePrice) {
		leg2Fires = false
	}

	switch {
	case leg1Fires:
		return domain.ExecutionDescriptor{
			TriggerID:     t.ID,
			TriggeredLeg:  1,
			ObservedPrice: ltp,
			OrderPayload:  legPayload(t, t.Leg1, t.TransactionType),
		}, true
	case leg2Fires:
		return domain.ExecutionDescriptor{
			TriggerID:     t.ID,
			TriggeredLeg:  2,
			ObservedPrice: ltp,
			OrderPayload:  legPayload(t, *t.Leg2, t.TransactionType),
		}, true
	default:
		return domain.ExecutionDescriptor{}, false
	}
}

func opposite(side domain.TransactionType) domain.TransactionType {
	if side == domain.TransactionBuy {
		return domain.TransactionSell
	}
	return domain.TransactionBuy
}

func legPayload(t domain.Trigger, leg domain.Leg, side domain.TransactionType) domain.OrderPayload {
	return domain.OrderPayload{
		TradingSymbol:   t.TradingSymbol,
		Exchange:        t.Exchange,
		TransactionType: side,
		Quantity:        leg.Quantity,
		OrderType:       "MARKET",
		Product:         leg.ProductType,
		Validity:        "DAY",
	}
}
