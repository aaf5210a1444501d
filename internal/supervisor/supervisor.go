// Package supervisor owns the engine's lifecycle: singleton leader
// election against the durable store, the Feed Manager connection, the
// Change Listener, and the tick-driven firing pipeline that ties the
// Trigger Index, Evaluator, Executor and State Writer together (C7).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hmtengine/internal/changelistener"
	"github.com/alanyoungcy/hmtengine/internal/domain"
	"github.com/alanyoungcy/hmtengine/internal/evaluator"
	"github.com/alanyoungcy/hmtengine/internal/executor"
	"github.com/alanyoungcy/hmtengine/internal/feed"
	"github.com/alanyoungcy/hmtengine/internal/notify"
	"github.com/alanyoungcy/hmtengine/internal/platform/broker"
	"github.com/alanyoungcy/hmtengine/internal/service"
	"github.com/alanyoungcy/hmtengine/internal/statewriter"
	"github.com/alanyoungcy/hmtengine/internal/triggerindex"
)

// Config controls the Supervisor's timing and broker defaults.
type Config struct {
	InstanceID          string
	HealthCheckInterval time.Duration
	HeartbeatInterval   time.Duration
	ReconnectDelay      time.Duration
	FeedWSURL           string
	BrokerBaseURL       string
	ExecutorMaxRetries  int
	ExecutorRetryBackoff time.Duration
}

// staleMultiple is the factor applied to HealthCheckInterval to derive
// the leader-lock staleness threshold.
const staleMultiple = 2

// Supervisor runs the singleton engine loop: it repeatedly attempts to
// become leader, and while leading, drives the full firing pipeline from
// live ticks.
type Supervisor struct {
	cfg Config

	engineState     domain.EngineStateStore
	triggers        domain.TriggerStore
	brokerConns     domain.BrokerConnectionStore
	risk            *service.RiskService
	stateWriter     *statewriter.Writer
	notifier        *notify.Notifier
	instrumentCache domain.InstrumentCache
	logger          *slog.Logger

	index    *triggerindex.Index
	listener *changelistener.Listener

	execMu    sync.Mutex
	executors map[string]*executor.Executor

	feedMu sync.Mutex
	feedMgr *feed.Manager

	mu           sync.Mutex
	enabled      bool
	status       domain.EngineStatus
	cancelLeader context.CancelFunc

	processedTicks int64
	triggersFired  int64
	triggersFailed int64
}

// New creates a Supervisor. index and listener are constructed by the
// caller (the listener needs the same index instance and a reference to
// the Supervisor's feed for resubscription) and wired in afterward via
// SetListener.
func New(
	cfg Config,
	engineState domain.EngineStateStore,
	triggers domain.TriggerStore,
	brokerConns domain.BrokerConnectionStore,
	risk *service.RiskService,
	stateWriter *statewriter.Writer,
	notifier *notify.Notifier,
	index *triggerindex.Index,
	instrumentCache domain.InstrumentCache,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:             cfg,
		engineState:     engineState,
		triggers:        triggers,
		brokerConns:     brokerConns,
		risk:            risk,
		stateWriter:     stateWriter,
		notifier:        notifier,
		index:           index,
		instrumentCache: instrumentCache,
		executors:       make(map[string]*executor.Executor),
		logger:          logger.With(slog.String("component", "supervisor")),
		enabled:         true,
		status:          domain.EngineStopped,
	}
}

// SetListener attaches the Change Listener the Supervisor starts alongside
// the feed connection on each leadership session.
func (s *Supervisor) SetListener(l *changelistener.Listener) {
	s.listener = l
}

// Subscribe adds tokens to the live feed subscription and refreshes the
// instrument cache so a future restart warms up with the current set. It
// implements changelistener.FeedSubscriber; it is a no-op when no feed is
// currently connected (the instance is not leading).
func (s *Supervisor) Subscribe(tokens []uint32) error {
	s.feedMu.Lock()
	mgr := s.feedMgr
	s.feedMu.Unlock()
	if mgr == nil {
		return nil
	}
	if err := mgr.Subscribe(tokens); err != nil {
		return err
	}
	if s.instrumentCache != nil {
		if err := s.instrumentCache.SetSubscribed(context.Background(), s.index.SubscribedInstruments()); err != nil {
			s.logger.Warn("failed to refresh cached instrument set", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Status reports the Supervisor's current health status.
func (s *Supervisor) Status() domain.EngineStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats returns a snapshot of the running counters.
func (s *Supervisor) Stats() domain.EngineStats {
	return domain.EngineStats{
		ProcessedTicks: atomic.LoadInt64(&s.processedTicks),
		TriggersFired:  atomic.LoadInt64(&s.triggersFired),
		TriggersFailed: atomic.LoadInt64(&s.triggersFailed),
	}
}

// GetEngineState returns the durable leader-election row, for the health
// surface to report the current leader's instance id and heartbeat age.
func (s *Supervisor) GetEngineState(ctx context.Context) (domain.EngineStateRow, error) {
	return s.engineState.Get(ctx)
}

// Stop disables the Supervisor and interrupts any in-progress leadership
// session, releasing the lock and tearing down the feed connection.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.enabled = false
	cancel := s.cancelLeader
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start re-enables the Supervisor after a Stop, allowing the next loop
// iteration to attempt leadership again.
func (s *Supervisor) Start() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
}

func (s *Supervisor) setStatus(status domain.EngineStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Supervisor) staleThreshold() time.Duration {
	if s.cfg.HealthCheckInterval <= 0 {
		return staleMultiple * 30 * time.Second
	}
	return staleMultiple * s.cfg.HealthCheckInterval
}

// Run is the top-level loop: attempt leadership, lead until the session
// ends (by error, by Stop, or by ctx cancellation), then retry after the
// configured reconnect delay. It returns only when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.mu.Lock()
		enabled := s.enabled
		s.mu.Unlock()
		if !enabled {
			s.setStatus(domain.EngineStopped)
			if !s.sleep(ctx, s.pollInterval()) {
				return nil
			}
			continue
		}

		acquired, err := s.engineState.TryAcquire(ctx, s.cfg.InstanceID, s.staleThreshold())
		if err != nil {
			s.logger.Error("leader election attempt failed", slog.String("error", err.Error()))
			s.setStatus(domain.EngineStale)
			if !s.sleep(ctx, s.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}

		if !acquired {
			s.setStatus(domain.EngineStandby)
			if !s.sleep(ctx, s.pollInterval()) {
				return nil
			}
			continue
		}

		if err := s.runLeader(ctx); err != nil {
			s.logger.Error("leadership session ended with error", slog.String("error", err.Error()))
			if setErr := s.engineState.SetEngineError(ctx, s.cfg.InstanceID, err.Error()); setErr != nil {
				s.logger.Warn("failed to record engine error", slog.String("error", setErr.Error()))
			}
		}

		if !s.sleep(ctx, s.cfg.ReconnectDelay) {
			return nil
		}
	}
}

func (s *Supervisor) pollInterval() time.Duration {
	if s.cfg.HealthCheckInterval <= 0 {
		return 30 * time.Second
	}
	return s.cfg.HealthCheckInterval
}

// sleep waits for d or ctx cancellation, reporting false if the caller
// should stop looping.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// runLeader executes the full start sequence, runs the feed, listener and
// heartbeat loop until one of them fails or the session is interrupted,
// and tears everything down on the way out (the shutdown sequence).
func (s *Supervisor) runLeader(parentCtx context.Context) error {
	leaderCtx, cancel := context.WithCancel(parentCtx)
	s.mu.Lock()
	s.cancelLeader = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelLeader = nil
		s.mu.Unlock()
	}()

	if err := s.startSequence(leaderCtx); err != nil {
		s.shutdown(leaderCtx)
		return err
	}

	s.setStatus(domain.EngineRunning)

	g, gctx := errgroup.WithContext(leaderCtx)
	g.Go(func() error { return s.listener.Run(gctx) })
	g.Go(func() error { return s.heartbeatLoop(gctx) })

	err := g.Wait()
	s.shutdown(leaderCtx)
	if err != nil && leaderCtx.Err() == nil {
		return err
	}
	return nil
}

// startSequence connects the feed and loads active triggers concurrently.
// Once both have completed it subscribes the feed to the last-known
// instrument set cached by the previous leader, builds the index from the
// loaded triggers, then subscribes to and persists the authoritative
// subscription set. The cached set is not subscribed before the store
// read has returned.
func (s *Supervisor) startSequence(ctx context.Context) error {
	mgr := feed.New(feed.Config{URL: s.cfg.FeedWSURL, ReconnectDelay: s.cfg.ReconnectDelay}, s.logger)
	mgr.SetTickHandler(s.onTick(ctx))

	var active []domain.Trigger
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		active, err = s.triggers.ListActive(gctx)
		return err
	})
	g.Go(func() error {
		return mgr.Connect(gctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("supervisor: start sequence: %w", err)
	}

	s.feedMu.Lock()
	s.feedMgr = mgr
	s.feedMu.Unlock()

	if s.instrumentCache != nil {
		if cached, err := s.instrumentCache.GetSubscribed(ctx); err != nil {
			s.logger.Warn("failed to read cached instrument set", slog.String("error", err.Error()))
		} else if len(cached) > 0 {
			if err := mgr.Subscribe(cached); err != nil {
				s.logger.Warn("failed to subscribe cached instrument set", slog.String("error", err.Error()))
			}
		}
	}

	for _, t := range active {
		s.index.Add(t)
	}

	tokens := s.index.SubscribedInstruments()
	if len(tokens) > 0 {
		if err := mgr.Subscribe(tokens); err != nil {
			s.logger.Warn("failed to subscribe active instrument set", slog.String("error", err.Error()))
		}
	}
	if s.instrumentCache != nil {
		if err := s.instrumentCache.SetSubscribed(ctx, tokens); err != nil {
			s.logger.Warn("failed to persist subscribed instrument set", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("supervisor acquired leadership",
		slog.String("instance_id", s.cfg.InstanceID),
		slog.Int("active_triggers", len(active)),
	)
	return nil
}

// shutdown stops heartbeating, closes the feed, clears the index, and
// releases the lock.
func (s *Supervisor) shutdown(ctx context.Context) {
	s.feedMu.Lock()
	mgr := s.feedMgr
	s.feedMgr = nil
	s.feedMu.Unlock()
	if mgr != nil {
		_ = mgr.Close()
	}

	s.index.Clear()

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.engineState.Release(releaseCtx, s.cfg.InstanceID); err != nil {
		s.logger.Warn("failed to release engine lock", slog.String("error", err.Error()))
	}
}

func (s *Supervisor) heartbeatLoop(ctx context.Context) error {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.engineState.Heartbeat(ctx, s.cfg.InstanceID, s.Stats()); err != nil {
				return fmt.Errorf("supervisor: heartbeat: %w", err)
			}
		}
	}
}

// onTick implements the firing pipeline's entry point: for each indexed
// trigger on the ticked instrument, claim the single-flight guard,
// evaluate, and dispatch a fire asynchronously.
func (s *Supervisor) onTick(ctx context.Context) feed.TickHandler {
	return func(token uint32, price float64) {
		atomic.AddInt64(&s.processedTicks, 1)

		triggers := s.index.ForInstrument(token)
		for _, t := range triggers {
			if !s.index.MarkProcessing(t.ID) {
				continue
			}

			desc, fired := evaluator.Evaluate(t, price)
			if !fired {
				s.index.UnmarkProcessing(t.ID)
				continue
			}

			go s.handleFire(ctx, t, desc)
		}
	}
}

// handleFire runs the risk gate, dispatches the order, records the
// outcome, and in all cases removes the trigger from the index.
func (s *Supervisor) handleFire(ctx context.Context, t domain.Trigger, desc domain.ExecutionDescriptor) {
	defer s.index.Remove(t.ID)

	log := s.logger.With(slog.String("trigger_id", t.ID), slog.Int("leg", desc.TriggeredLeg))

	reason, err := s.risk.Check(ctx, t.UserID)
	if err != nil {
		log.Error("risk check failed", slog.String("error", err.Error()))
		s.fail(ctx, t.ID, "risk check error: "+err.Error())
		return
	}
	if reason != "" {
		s.fail(ctx, t.ID, "risk: "+reason)
		return
	}

	ex := s.executorFor(ctx, t.BrokerAccountID)
	if ex == nil {
		s.fail(ctx, t.ID, "no broker client available for account "+t.BrokerAccountID)
		return
	}

	result, err := ex.Execute(ctx, desc)
	if err != nil {
		s.fail(ctx, t.ID, err.Error())
		return
	}
	if !result.Success {
		s.fail(ctx, t.ID, result.Message)
		return
	}

	if err := s.stateWriter.MarkTriggered(ctx, t.ID, desc.TriggeredLeg, desc.ObservedPrice, result.OrderID); err != nil {
		log.Error("failed to record triggered status", slog.String("error", err.Error()))
	}
	if err := s.stateWriter.AppendTradeLog(ctx, domain.TradeLogEntry{
		TriggerID:     t.ID,
		Leg:           desc.TriggeredLeg,
		ObservedPrice: desc.ObservedPrice,
		BrokerOrderID: result.OrderID,
		Status:        "filled",
	}); err != nil {
		log.Warn("failed to append trade log", slog.String("error", err.Error()))
	}

	atomic.AddInt64(&s.triggersFired, 1)
	s.risk.RecordFire(ctx, t.UserID)

	if t.IsTwoLeg() {
		if siblingID, ok := s.index.OcoSibling(t.ID); ok {
			if _, err := s.stateWriter.CancelSibling(ctx, siblingID, "sibling leg fired"); err != nil {
				log.Warn("failed to cancel sibling leg", slog.String("sibling_id", siblingID), slog.String("error", err.Error()))
			}
			s.index.Remove(siblingID)
		}
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, "trigger_fired", "Trigger fired",
			fmt.Sprintf("%s leg %d fired at %.2f (order %s)", t.TradingSymbol, desc.TriggeredLeg, desc.ObservedPrice, result.OrderID),
		)
	}
}

func (s *Supervisor) fail(ctx context.Context, id string, reason string) {
	if err := s.stateWriter.MarkFailed(ctx, id, reason); err != nil {
		s.logger.Error("failed to record failed status", slog.String("trigger_id", id), slog.String("error", err.Error()))
	}
	atomic.AddInt64(&s.triggersFailed, 1)
	if s.notifier != nil {
		_ = s.notifier.Notify(context.WithoutCancel(ctx), "trigger_failed", "Trigger failed", reason)
	}
}

// executorFor returns a cached Executor for the given broker account,
// building and caching a new one on first use.
func (s *Supervisor) executorFor(ctx context.Context, accountID string) *executor.Executor {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if ex, ok := s.executors[accountID]; ok {
		return ex
	}

	conn, err := s.brokerConns.GetByID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to resolve broker account",
			slog.String("broker_account_id", accountID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	baseURL := s.cfg.BrokerBaseURL
	client := broker.New(broker.Config{
		BaseURL:     baseURL,
		APIKey:      conn.APIKey,
		AccessToken: conn.AccessToken,
	})
	ex := executor.New(client, executor.Config{
		MaxRetries:   s.cfg.ExecutorMaxRetries,
		RetryBackoff: s.cfg.ExecutorRetryBackoff,
	}, s.logger)
	s.executors[accountID] = ex
	return ex
}
