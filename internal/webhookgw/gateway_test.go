package webhookgw

import (
	"testing"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		sig  signal
	}{
		{"missing key", signal{Symbol: "NIFTY", TradeType: "BUY", Price: 100, ATR: 5}},
		{"missing symbol", signal{WebhookKey: "k", TradeType: "BUY", Price: 100, ATR: 5}},
		{"bad side", signal{WebhookKey: "k", Symbol: "NIFTY", TradeType: "HOLD", Price: 100, ATR: 5}},
		{"zero price", signal{WebhookKey: "k", Symbol: "NIFTY", TradeType: "BUY", Price: 0, ATR: 5}},
		{"zero atr", signal{WebhookKey: "k", Symbol: "NIFTY", TradeType: "BUY", Price: 100, ATR: 0}},
	}
	for _, c := range cases {
		if reason := validate(c.sig); reason == "" {
			t.Errorf("%s: expected validation error, got none", c.name)
		}
	}
}

func TestValidateAcceptsWellFormedSignal(t *testing.T) {
	sig := signal{WebhookKey: "k", Symbol: "NIFTY", TradeType: "BUY", Price: 100, ATR: 5}
	if reason := validate(sig); reason != "" {
		t.Fatalf("unexpected validation error: %s", reason)
	}
}

func TestComputeStopTargetBuy(t *testing.T) {
	g := &Gateway{cfg: Config{SLMultiplier: 1.5, TargetMultiplier: 2.0}.withDefaults()}
	sig := signal{TradeType: "BUY", Price: 100, ATR: 10}
	stop, target := g.computeStopTarget(sig)
	if stop != 85 {
		t.Errorf("expected stop 85, got %v", stop)
	}
	if target != 120 {
		t.Errorf("expected target 120, got %v", target)
	}
}

func TestComputeStopTargetSell(t *testing.T) {
	g := &Gateway{cfg: Config{SLMultiplier: 1.5, TargetMultiplier: 2.0}.withDefaults()}
	sig := signal{TradeType: "SELL", Price: 100, ATR: 10}
	stop, target := g.computeStopTarget(sig)
	if stop != 115 {
		t.Errorf("expected stop 115, got %v", stop)
	}
	if target != 80 {
		t.Errorf("expected target 80, got %v", target)
	}
}

func TestOppositeSide(t *testing.T) {
	if opposite(domain.TransactionBuy) != domain.TransactionSell {
		t.Fatalf("expected SELL")
	}
	if opposite(domain.TransactionSell) != domain.TransactionBuy {
		t.Fatalf("expected BUY")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.SLMultiplier != 1.5 {
		t.Errorf("expected default SL multiplier 1.5, got %v", cfg.SLMultiplier)
	}
	if cfg.TargetMultiplier != 2.0 {
		t.Errorf("expected default target multiplier 2.0, got %v", cfg.TargetMultiplier)
	}
	if cfg.LotMultiplier != 1 {
		t.Errorf("expected default lot multiplier 1, got %v", cfg.LotMultiplier)
	}
}
