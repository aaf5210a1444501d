package evaluator

import (
	"testing"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

func ref(v float64) *float64 { return &v }

func TestEvaluateSingleBuyFires(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		TradingSymbol:   "RELIANCE",
		Exchange:        "NSE",
		ConditionType:   domain.ConditionSingle,
		TransactionType: domain.TransactionBuy,
		Leg1:            domain.Leg{TriggerPrice: 100, Quantity: 10, ProductType: "MIS"},
	}

	desc, fired := Evaluate(trig, 100.5)
	if !fired {
		t.Fatalf("expected trigger to fire")
	}
	if desc.TriggeredLeg != 1 || desc.ObservedPrice != 100.5 {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
	if desc.OrderPayload.TransactionType != domain.TransactionBuy || desc.OrderPayload.Quantity != 10 {
		t.Fatalf("unexpected payload: %+v", desc.OrderPayload)
	}
}

func TestEvaluateSingleSellFiresOnlyAtOrBelowThreshold(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionSingle,
		TransactionType: domain.TransactionSell,
		Leg1:            domain.Leg{TriggerPrice: 100, Quantity: 5},
	}
	if _, fired := Evaluate(trig, 101); fired {
		t.Fatalf("sell trigger should not fire above threshold")
	}
	if _, fired := Evaluate(trig, 100); !fired {
		t.Fatalf("sell trigger should fire at or below threshold")
	}
}

func TestEvaluateSingleRespectsReferencePriceCrossing(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionSingle,
		TransactionType: domain.TransactionBuy,
		Leg1:            domain.Leg{TriggerPrice: 100, Quantity: 1},
		ReferencePrice:  ref(100.2), // reference already above threshold: no real crossing
	}
	if _, fired := Evaluate(trig, 100.5); fired {
		t.Fatalf("expected no fire: reference price was already past threshold")
	}

	trig.ReferencePrice = ref(99) // reference below threshold: genuine upward crossing
	if _, fired := Evaluate(trig, 100.5); !fired {
		t.Fatalf("expected fire: reference price confirms crossing")
	}
}

func TestEvaluateTwoLegLongExitLeg1Wins(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionTwoLeg,
		TransactionType: domain.TransactionSell,
		Leg1:            domain.Leg{TriggerPrice: 90, Quantity: 10, ProductType: "MIS"},  // stop-loss
		Leg2:            &domain.Leg{TriggerPrice: 110, Quantity: 10, ProductType: "MIS"}, // target
	}

	// Gap-down below the stop-loss (90): leg 1 fires; the target (110) is not reached.
	desc, fired := Evaluate(trig, 89)
	if !fired || desc.TriggeredLeg != 1 {
		t.Fatalf("expected leg 1 to win, got %+v fired=%v", desc, fired)
	}
}

func TestEvaluateTwoLegLongExitTargetFires(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionTwoLeg,
		TransactionType: domain.TransactionSell,
		Leg1:            domain.Leg{TriggerPrice: 90, Quantity: 10},
		Leg2:            &domain.Leg{TriggerPrice: 110, Quantity: 10},
	}
	desc, fired := Evaluate(trig, 111)
	if !fired || desc.TriggeredLeg != 2 {
		t.Fatalf("expected leg 2 (target) to fire, got %+v fired=%v", desc, fired)
	}
}

func TestEvaluateTwoLegNoLegWithoutCrossing(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionTwoLeg,
		TransactionType: domain.TransactionSell,
		Leg1:            domain.Leg{TriggerPrice: 90, Quantity: 10},
		Leg2:            &domain.Leg{TriggerPrice: 110, Quantity: 10},
	}
	if _, fired := Evaluate(trig, 100); fired {
		t.Fatalf("price between legs should not fire either leg")
	}
}

func TestEvaluateTwoLegMissingLeg2NeverFires(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionTwoLeg,
		TransactionType: domain.TransactionSell,
		Leg1:            domain.Leg{TriggerPrice: 90, Quantity: 10},
	}
	if _, fired := Evaluate(trig, 50); fired {
		t.Fatalf("a two-leg trigger missing Leg2 must never fire")
	}
}

func TestEvaluateTwoLegTargetFiresWithReferencePrice(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionTwoLeg,
		TransactionType: domain.TransactionSell,
		Leg1:            domain.Leg{TriggerPrice: 90, Quantity: 10},
		Leg2:            &domain.Leg{TriggerPrice: 110, Quantity: 10},
		ReferencePrice:  ref(100),
	}

	if _, fired := Evaluate(trig, 99); fired {
		t.Fatalf("price within both legs should not fire")
	}

	desc, fired := Evaluate(trig, 112)
	if !fired || desc.TriggeredLeg != 2 {
		t.Fatalf("expected leg 2 (target) to fire on up-cross past reference price, got %+v fired=%v", desc, fired)
	}
}

func TestEvaluateTwoLegShortExitSides(t *testing.T) {
	trig := domain.Trigger{
		ID:              "t1",
		ConditionType:   domain.ConditionTwoLeg,
		TransactionType: domain.TransactionBuy, // exiting a short position
		Leg1:            domain.Leg{TriggerPrice: 110, Quantity: 10}, // stop-loss, up-cross
		Leg2:            &domain.Leg{TriggerPrice: 90, Quantity: 10}, // target, down-cross
	}

	desc, fired := Evaluate(trig, 111)
	if !fired || desc.TriggeredLeg != 1 {
		t.Fatalf("expected stop-loss leg to fire on up-cross, got %+v fired=%v", desc, fired)
	}

	desc, fired = Evaluate(trig, 89)
	if !fired || desc.TriggeredLeg != 2 {
		t.Fatalf("expected target leg to fire on down-cross, got %+v fired=%v", desc, fired)
	}
}
