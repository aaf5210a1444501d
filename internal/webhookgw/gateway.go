// Package webhookgw implements the inbound HTTP signal endpoint (C8): it
// authenticates a charting-platform alert, resolves it to a derivatives
// contract, places the market entry order, and arms a two-leg exit
// trigger for the engine to monitor.
package webhookgw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hmtengine/internal/domain"
	"github.com/alanyoungcy/hmtengine/internal/executor"
	"github.com/alanyoungcy/hmtengine/internal/notify"
	"github.com/alanyoungcy/hmtengine/internal/platform/broker"
)

// Config controls the ATR-derived stop/target and lot sizing defaults.
type Config struct {
	SLMultiplier     float64
	TargetMultiplier float64
	LotMultiplier    int
	CashExchange     string
	BrokerBaseURL    string
}

func (c Config) withDefaults() Config {
	if c.SLMultiplier <= 0 {
		c.SLMultiplier = 1.5
	}
	if c.TargetMultiplier <= 0 {
		c.TargetMultiplier = 2.0
	}
	if c.LotMultiplier <= 0 {
		c.LotMultiplier = 1
	}
	if c.CashExchange == "" {
		c.CashExchange = "NSE"
	}
	return c
}

// signal is the inbound JSON payload.
type signal struct {
	WebhookKey string  `json:"webhook_key"`
	Symbol     string  `json:"symbol"`
	TradeType  string  `json:"trade_type"`
	Action     string  `json:"action"`
	Exchange   string  `json:"exchange"`
	Timeframe  string  `json:"timeframe"`
	EventTime  string  `json:"event_time"`
	Price      float64 `json:"price"`
	ATR        float64 `json:"atr"`
}

func (s signal) side() domain.TransactionType {
	t := s.TradeType
	if t == "" {
		t = s.Action
	}
	return domain.TransactionType(t)
}

// accountOutcome reports what happened for a single matched broker account.
type accountOutcome struct {
	BrokerAccountID string `json:"broker_account_id"`
	Success         bool   `json:"success"`
	OrderID         string `json:"order_id,omitempty"`
	TriggerID       string `json:"trigger_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Gateway serves the webhook HTTP endpoint.
type Gateway struct {
	cfg Config

	webhookKeys   domain.WebhookKeyStore
	keyCache      domain.WebhookKeyCache
	brokerConns   domain.BrokerConnectionStore
	nfoInstr      domain.NFOInstrumentStore
	orders        domain.OrderStore
	triggers      domain.TriggerStore
	positions     domain.PositionStore
	webhookLogs   domain.WebhookLogStore
	notifications domain.NotificationStore
	notifier      *notify.Notifier

	execCfg executor.Config
	logger  *slog.Logger

	now func() time.Time
}

// New creates a Gateway.
func New(
	cfg Config,
	webhookKeys domain.WebhookKeyStore,
	keyCache domain.WebhookKeyCache,
	brokerConns domain.BrokerConnectionStore,
	nfoInstr domain.NFOInstrumentStore,
	orders domain.OrderStore,
	triggers domain.TriggerStore,
	positions domain.PositionStore,
	webhookLogs domain.WebhookLogStore,
	notifications domain.NotificationStore,
	notifier *notify.Notifier,
	execCfg executor.Config,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		cfg:           cfg.withDefaults(),
		webhookKeys:   webhookKeys,
		keyCache:      keyCache,
		brokerConns:   brokerConns,
		nfoInstr:      nfoInstr,
		orders:        orders,
		triggers:      triggers,
		positions:     positions,
		webhookLogs:   webhookLogs,
		notifications: notifications,
		notifier:      notifier,
		execCfg:       execCfg,
		logger:        logger.With(slog.String("component", "webhookgw")),
		now:           time.Now,
	}
}

// digest returns the deterministic lookup key for a raw webhook key.
func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ServeHTTP implements POST /webhook.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sourceIP := clientIP(r)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body []byte
	var sig signal
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&sig); err != nil {
		g.logRequest(ctx, sourceIP, string(body), "rejected", "malformed json")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed json body"})
		return
	}
	raw, _ := json.Marshal(sig)

	if reason := validate(sig); reason != "" {
		g.logRequest(ctx, sourceIP, string(raw), "rejected", reason)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": reason})
		return
	}

	key, err := g.resolveKey(ctx, sig.WebhookKey)
	if err != nil {
		g.logRequest(ctx, sourceIP, string(raw), "rejected", domain.ErrWebhookKeyInvalid.Error())
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": domain.ErrWebhookKeyInvalid.Error()})
		return
	}

	accounts, err := g.resolveAccounts(ctx, key.BrokerAccountIDs)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveAccounts) {
			g.logRequest(ctx, sourceIP, string(raw), "rejected", err.Error())
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		g.logRequest(ctx, sourceIP, string(raw), "rejected", "account resolution failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "account resolution failed"})
		return
	}

	instrument, err := g.resolveInstrument(ctx, sig.Symbol)
	if err != nil {
		g.logRequest(ctx, sourceIP, string(raw), "rejected", err.Error())
		if errors.Is(err, domain.ErrExpiryNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "instrument resolution failed"})
		return
	}

	quantity := instrument.LotSize * g.cfg.LotMultiplier
	stop, target := g.computeStopTarget(sig)

	outcomes := make([]accountOutcome, 0, len(accounts))
	for _, acct := range accounts {
		outcomes = append(outcomes, g.placeForAccount(ctx, acct, sig, instrument, quantity, stop, target))
	}

	g.logRequest(ctx, sourceIP, string(raw), "success", "")
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func validate(sig signal) string {
	if sig.WebhookKey == "" {
		return "webhook_key is required"
	}
	if sig.Symbol == "" {
		return "symbol is required"
	}
	side := sig.side()
	if side != domain.TransactionBuy && side != domain.TransactionSell {
		return "trade_type must be BUY or SELL"
	}
	if sig.Price <= 0 {
		return "price must be > 0"
	}
	if sig.ATR <= 0 {
		return "atr must be > 0"
	}
	return ""
}

func (g *Gateway) resolveKey(ctx context.Context, raw string) (domain.WebhookKey, error) {
	hash := digest(raw)

	if g.keyCache != nil {
		if key, err := g.keyCache.Get(ctx, hash); err == nil {
			if !key.Active {
				return domain.WebhookKey{}, domain.ErrWebhookKeyInvalid
			}
			_ = g.webhookKeys.TouchLastUsed(ctx, key.ID)
			return key, nil
		}
	}

	key, err := g.webhookKeys.GetByKeyHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.WebhookKey{}, domain.ErrWebhookKeyInvalid
		}
		return domain.WebhookKey{}, fmt.Errorf("webhookgw: resolve key: %w", err)
	}
	if !key.Active {
		return domain.WebhookKey{}, domain.ErrWebhookKeyInvalid
	}
	if g.keyCache != nil {
		_ = g.keyCache.Set(ctx, hash, key)
	}
	if err := g.webhookKeys.TouchLastUsed(ctx, key.ID); err != nil {
		g.logger.Warn("failed to touch webhook key last_used_at", slog.String("error", err.Error()))
	}
	return key, nil
}

func (g *Gateway) resolveAccounts(ctx context.Context, ids []string) ([]domain.BrokerConnection, error) {
	active, err := g.brokerConns.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("webhookgw: list active broker accounts: %w", err)
	}

	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}

	var matched []domain.BrokerConnection
	for _, conn := range active {
		if _, ok := allowed[conn.ID]; ok {
			matched = append(matched, conn)
		}
	}
	if len(matched) == 0 {
		return nil, domain.ErrNoActiveAccounts
	}
	return matched, nil
}

// resolveInstrument picks the nearest futures expiry (day-of-month <= 15)
// or the second-nearest otherwise.
func (g *Gateway) resolveInstrument(ctx context.Context, underlying string) (domain.NFOInstrument, error) {
	now := g.now()
	futures, err := g.nfoInstr.ListActiveFutures(ctx, underlying, now)
	if err != nil {
		return domain.NFOInstrument{}, fmt.Errorf("webhookgw: list active futures: %w", err)
	}

	slot := 0
	if now.Day() > 15 {
		slot = 1
	}
	if slot >= len(futures) {
		return domain.NFOInstrument{}, fmt.Errorf("%w: slot %d for %s", domain.ErrExpiryNotFound, slot, underlying)
	}
	return futures[slot], nil
}

// computeStopTarget derives the stop and target absolute prices from ATR.
func (g *Gateway) computeStopTarget(sig signal) (stop float64, target float64) {
	sl := sig.ATR * g.cfg.SLMultiplier
	tgt := sig.ATR * g.cfg.TargetMultiplier

	switch sig.side() {
	case domain.TransactionBuy:
		return sig.Price - sl, sig.Price + tgt
	default: // SELL
		return sig.Price + sl, sig.Price - tgt
	}
}

// placeForAccount places the market entry order for one broker account
// and, only on success, persists the order and arms the exit trigger.
func (g *Gateway) placeForAccount(
	ctx context.Context,
	acct domain.BrokerConnection,
	sig signal,
	instrument domain.NFOInstrument,
	quantity int,
	stop, target float64,
) accountOutcome {
	outcome := accountOutcome{BrokerAccountID: acct.ID}

	entrySide := sig.side()
	client := broker.New(broker.Config{BaseURL: g.cfg.BrokerBaseURL, APIKey: acct.APIKey, AccessToken: acct.AccessToken})
	ex := executor.New(client, g.execCfg, g.logger)

	entryDesc := domain.ExecutionDescriptor{
		TriggerID:     "webhook:" + uuid.New().String(),
		TriggeredLeg:  1,
		ObservedPrice: sig.Price,
		OrderPayload: domain.OrderPayload{
			TradingSymbol:   instrument.TradingSymbol,
			Exchange:        instrument.Exchange,
			TransactionType: entrySide,
			Quantity:        quantity,
			OrderType:       "MARKET",
			Product:         "MIS",
			Validity:        "DAY",
		},
	}

	result, err := ex.Execute(ctx, entryDesc)
	if err != nil {
		outcome.Reason = err.Error()
		return outcome
	}
	if !result.Success {
		outcome.Reason = result.Message
		return outcome
	}

	orderID := uuid.New().String()
	order := domain.Order{
		ID:              orderID,
		BrokerAccountID: acct.ID,
		TradingSymbol:   instrument.TradingSymbol,
		Exchange:        instrument.Exchange,
		TransactionType: entrySide,
		Quantity:        quantity,
		Product:         "MIS",
		Status:          domain.OrderStatusPlaced,
		BrokerOrderID:   result.OrderID,
		Price:           sig.Price,
		Source:          "webhook",
		CreatedAt:       g.now(),
	}
	if err := g.orders.Create(ctx, order); err != nil {
		g.logger.Error("failed to persist webhook entry order", slog.String("error", err.Error()))
	}

	exitSide := opposite(entrySide)
	refPrice := sig.Price
	refSetAt := g.now()
	trigger := domain.Trigger{
		ID:              uuid.New().String(),
		UserID:          acct.UserID,
		BrokerAccountID: acct.ID,
		Exchange:        instrument.Exchange,
		TradingSymbol:   instrument.TradingSymbol,
		InstrumentToken: instrument.InstrumentToken,
		ConditionType:   domain.ConditionTwoLeg,
		TransactionType: exitSide,
		Leg1: domain.Leg{
			ProductType:  "MIS",
			TriggerPrice: stop,
			Quantity:     quantity,
		},
		Leg2: &domain.Leg{
			ProductType:  "MIS",
			TriggerPrice: target,
			Quantity:     quantity,
		},
		ReferencePrice:      &refPrice,
		ReferencePriceSetAt: &refSetAt,
		Status:              domain.TriggerActive,
		CreatedAt:           g.now(),
		UpdatedAt:           g.now(),
	}
	if err := g.triggers.Create(ctx, trigger); err != nil {
		g.logger.Error("failed to create exit trigger", slog.String("error", err.Error()))
		outcome.Success = true
		outcome.OrderID = result.OrderID
		outcome.Reason = "entry filled but exit trigger could not be armed: " + err.Error()
		return outcome
	}

	if g.notifications != nil {
		_ = g.notifications.Create(ctx, domain.Notification{
			ID:        uuid.New().String(),
			UserID:    acct.UserID,
			Title:     "Webhook order placed",
			Message:   fmt.Sprintf("%s %s x%d @ %.2f, stop %.2f target %.2f", entrySide, instrument.TradingSymbol, quantity, sig.Price, stop, target),
			CreatedAt: g.now(),
		})
	}
	if g.notifier != nil {
		_ = g.notifier.Notify(ctx, "order_placed", "Webhook order placed",
			fmt.Sprintf("%s %s x%d @ %.2f", entrySide, instrument.TradingSymbol, quantity, sig.Price),
		)
	}

	outcome.Success = true
	outcome.OrderID = result.OrderID
	outcome.TriggerID = trigger.ID
	return outcome
}

func opposite(side domain.TransactionType) domain.TransactionType {
	if side == domain.TransactionBuy {
		return domain.TransactionSell
	}
	return domain.TransactionBuy
}

func (g *Gateway) logRequest(ctx context.Context, sourceIP, rawPayload, outcome, reason string) {
	if g.webhookLogs == nil {
		return
	}
	if err := g.webhookLogs.Append(ctx, domain.WebhookLogEntry{
		SourceIP:   sourceIP,
		RawPayload: rawPayload,
		Outcome:    outcome,
		Reason:     reason,
		CreatedAt:  g.now(),
	}); err != nil {
		g.logger.Warn("failed to append webhook log", slog.String("error", err.Error()))
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
