package usecase

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// RunEvent is a progress notification pushed to status subscribers.
type RunEvent struct {
	RunID   string           `json:"run_id"`
	Status  domain.RunStatus `json:"status"`
	Done    int              `json:"done"`
	Total   int              `json:"total"`
	Message string           `json:"message,omitempty"`
}

// Coordinator owns the lifecycle of every backtest run: submission,
// background execution, timeout, cancellation, incremental persistence and
// the bounded registry of recent runs.
//
// Each run executes on its own goroutine with a context derived from the
// coordinator's base context, never from the submitting request. The
// persistence handle is the coordinator's long-lived store, so a run can
// never be left holding a connection the request layer tore down.
type Coordinator struct {
	runs    domain.RunRepository
	trades  domain.TradeRepository
	barSrc  domain.BarSource
	sigSrc  domain.SignalSource
	engine  *Engine
	logger  *zap.Logger
	baseCtx context.Context

	sem chan struct{}

	mu       sync.RWMutex
	registry *runRegistry
	cancels  map[string]context.CancelFunc
	subs     map[string][]chan RunEvent
}

type CoordinatorConfig struct {
	MaxConcurrent    int
	RegistryCapacity int
}

func NewCoordinator(
	runs domain.RunRepository,
	trades domain.TradeRepository,
	barSrc domain.BarSource,
	sigSrc domain.SignalSource,
	engine *Engine,
	logger *zap.Logger,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.RegistryCapacity <= 0 {
		cfg.RegistryCapacity = 128
	}
	return &Coordinator{
		runs:     runs,
		trades:   trades,
		barSrc:   barSrc,
		sigSrc:   sigSrc,
		engine:   engine,
		logger:   logger,
		baseCtx:  context.Background(),
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		registry: newRunRegistry(cfg.RegistryCapacity),
		cancels:  make(map[string]context.CancelFunc),
		subs:     make(map[string][]chan RunEvent),
	}
}

// SetContext replaces the base context the run tasks derive from, for
// process-level shutdown.
func (c *Coordinator) SetContext(ctx context.Context) {
	if ctx != nil {
		c.baseCtx = ctx
	}
}

// Submit validates the configuration, persists the queued run and launches
// the background task. It returns the run id immediately; the simulation
// runs asynchronously. Configuration problems, including a walk-forward
// layout that cannot partition the dataset, are fatal here and the run
// never starts.
func (c *Coordinator) Submit(ctx context.Context, cfg domain.RunConfig) (*domain.BacktestRun, error) {
	if cfg.Symbol == "" {
		return nil, &domain.ConfigurationError{Field: "symbol", Detail: "required"}
	}
	if _, err := domain.TimeframeDuration(cfg.Timeframe); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	// Bars are fetched at submission so partition and gap problems reject
	// the run before it ever gets a status. The slice is read-only from
	// here on and is handed to the task wholesale.
	bars, err := c.barSrc.Bars(ctx, cfg.Symbol, cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("bar source: %w", err)
	}
	if len(bars) == 0 {
		return nil, &domain.DataGapError{Symbol: cfg.Symbol, Detail: "no bars for requested range"}
	}
	if err := domain.CheckGaps(bars, cfg.Timeframe, cfg.GapToleranceBar); err != nil {
		return nil, err
	}
	if cfg.WalkForward.Enabled {
		if _, err := BuildWindows(cfg.WalkForward, len(bars)); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	run := &domain.BacktestRun{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    domain.RunQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.runs.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(c.baseCtx)
	c.mu.Lock()
	c.registry.put(run)
	c.cancels[run.ID] = cancel
	c.mu.Unlock()

	// The task owns the run struct once launched, so the caller's snapshot
	// must be taken before the goroutine starts mutating it.
	snapshot := *run
	go c.execute(taskCtx, run, bars)

	return &snapshot, nil
}

// execute is the run task. It owns all mutable state of the run and is the
// only writer of its status.
func (c *Coordinator) execute(ctx context.Context, run *domain.BacktestRun, bars []domain.Bar) {
	defer func() {
		c.mu.Lock()
		delete(c.cancels, run.ID)
		c.mu.Unlock()
	}()

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	runCtx, cancel := context.WithTimeout(ctx, run.Config.Timeout)
	defer cancel()

	c.transition(run, domain.RunRunning, "fetching signals")
	run.StartedAt = time.Now().UTC()

	signals, err := c.sigSrc.Signals(runCtx, run.Config.Symbol, bars)
	if err != nil {
		c.fail(run, fmt.Errorf("signal source: %w", err))
		return
	}

	sinks := SimSinks{
		OnTrade: func(t domain.Trade) {
			if err := c.trades.SaveTrade(ctx, &t); err != nil {
				c.logger.Warn("trade persist failed", zap.String("run_id", run.ID), zap.Error(err))
			}
		},
		OnRejection: func(r domain.RejectionRecord) {
			if err := c.trades.SaveRejection(ctx, &r); err != nil {
				c.logger.Warn("rejection persist failed", zap.String("run_id", run.ID), zap.Error(err))
			}
		},
		OnProgress: func(done, total int) {
			c.publish(RunEvent{RunID: run.ID, Status: domain.RunRunning, Done: done, Total: total})
		},
	}

	if run.Config.WalkForward.Enabled {
		c.executeWalkForward(ctx, runCtx, run, bars, signals)
		return
	}

	res, err := c.engine.Run(runCtx, run.ID, run.Config, bars, signals, sinks)
	if err != nil {
		c.fail(run, err)
		return
	}

	run.Metrics = &res.Metrics
	run.TradeCount = len(res.Trades)
	run.Rejections = len(res.Rejections)
	c.finish(run, runCtx, res.Partial)
}

func (c *Coordinator) executeWalkForward(taskCtx, runCtx context.Context, run *domain.BacktestRun, bars []domain.Bar, signals []domain.Signal) {
	wf := NewWalkForwardEngine(c.engine, c.logger, cap(c.sem))
	summary, err := wf.Run(runCtx, run.ID, run.Config, bars, signals, func(res domain.WindowResult) {
		if err := c.trades.SaveWindowResult(taskCtx, run.ID, &res); err != nil {
			c.logger.Warn("window persist failed", zap.String("run_id", run.ID), zap.Error(err))
		}
		c.publish(RunEvent{
			RunID: run.ID, Status: domain.RunRunning,
			Done: res.Window.Index + 1, Total: len(bars),
			Message: fmt.Sprintf("window %d done, %d trades", res.Window.Index, res.TradeCount),
		})
	})
	if err != nil {
		// Cancellation surfaces from a window as a context error. The
		// windows that did finish are kept on the terminal run.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			if summary != nil {
				run.WalkForward = summary
				for _, w := range summary.Windows {
					run.TradeCount += w.TradeCount
				}
			}
			c.finish(run, runCtx, true)
			return
		}
		c.fail(run, err)
		return
	}

	run.WalkForward = summary
	for _, w := range summary.Windows {
		run.TradeCount += w.TradeCount
	}
	c.finish(run, runCtx, false)
}

// finish writes the terminal status. A deadline expiry is the first-class
// TIMEOUT status carrying whatever was computed, never a bare failure.
func (c *Coordinator) finish(run *domain.BacktestRun, runCtx context.Context, partial bool) {
	status := domain.RunCompleted
	message := "completed"
	if partial {
		switch runCtx.Err() {
		case context.DeadlineExceeded:
			status = domain.RunTimeout
			message = "wall-clock timeout, partial results retained"
		case context.Canceled:
			status = domain.RunCancelled
			message = "cancelled"
		}
	}
	run.EndedAt = time.Now().UTC()
	run.Status = status
	run.Message = message
	run.UpdatedAt = run.EndedAt

	// Terminal result persists on the task's own lifetime: the base
	// context, not the possibly-expired run deadline.
	if err := c.runs.UpdateRunResult(c.baseCtx, run); err != nil {
		c.logger.Error("result persist failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	c.mu.Lock()
	c.registry.put(run)
	c.mu.Unlock()
	c.publish(RunEvent{RunID: run.ID, Status: status, Message: message})
	c.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("trades", run.TradeCount))
}

func (c *Coordinator) fail(run *domain.BacktestRun, err error) {
	var lifecycle *domain.ResourceLifecycleError
	if errors.As(err, &lifecycle) {
		c.logger.Error("persistence handle lost mid-run", zap.String("run_id", run.ID), zap.Error(err))
	}
	run.Status = domain.RunFailed
	run.Message = err.Error()
	run.EndedAt = time.Now().UTC()
	run.UpdatedAt = run.EndedAt
	if uerr := c.runs.UpdateRunResult(c.baseCtx, run); uerr != nil {
		c.logger.Error("failure persist failed", zap.String("run_id", run.ID), zap.Error(uerr))
	}
	c.mu.Lock()
	c.registry.put(run)
	c.mu.Unlock()
	c.publish(RunEvent{RunID: run.ID, Status: domain.RunFailed, Message: run.Message})
	c.logger.Warn("run failed", zap.String("run_id", run.ID), zap.Error(err))
}

func (c *Coordinator) transition(run *domain.BacktestRun, status domain.RunStatus, message string) {
	run.Status = status
	run.Message = message
	run.UpdatedAt = time.Now().UTC()
	if err := c.runs.UpdateRunStatus(c.baseCtx, run.ID, status, message); err != nil {
		c.logger.Warn("status persist failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	c.mu.Lock()
	c.registry.put(run)
	c.mu.Unlock()
	c.publish(RunEvent{RunID: run.ID, Status: status, Message: message})
}

// GetRun serves status queries from the bounded registry first and falls
// back to the repository for evicted runs.
func (c *Coordinator) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	c.mu.RLock()
	run, ok := c.registry.get(id)
	c.mu.RUnlock()
	if ok {
		return run, nil
	}
	return c.runs.GetRun(ctx, id)
}

// Cancel requests cooperative cancellation of a running run. The
// simulation loop notices between bars and stops cleanly; partial state
// already persisted is kept.
func (c *Coordinator) Cancel(id string) error {
	c.mu.RLock()
	cancel, ok := c.cancels[id]
	c.mu.RUnlock()
	if !ok {
		return domain.ErrRunNotFound
	}
	cancel()
	return nil
}

// Subscribe returns a channel of progress events for a run. The caller
// must Unsubscribe when done.
func (c *Coordinator) Subscribe(runID string) chan RunEvent {
	ch := make(chan RunEvent, 16)
	c.mu.Lock()
	c.subs[runID] = append(c.subs[runID], ch)
	c.mu.Unlock()
	return ch
}

func (c *Coordinator) Unsubscribe(runID string, ch chan RunEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subs[runID]
	for i, s := range subs {
		if s == ch {
			c.subs[runID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(c.subs[runID]) == 0 {
		delete(c.subs, runID)
	}
}

func (c *Coordinator) publish(ev RunEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs[ev.RunID] {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than stall the run
		}
	}
}

// runRegistry is a capacity-bounded LRU of recent runs. Evicted entries
// remain in the repository; the registry only bounds memory, it is not the
// source of truth.
type runRegistry struct {
	capacity int
	order    *list.List // front = most recent
	items    map[string]*list.Element
}

type registryEntry struct {
	id  string
	run *domain.BacktestRun
}

func newRunRegistry(capacity int) *runRegistry {
	return &runRegistry{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// put stores a snapshot, never the caller's pointer: the run task keeps
// mutating its own struct while readers hold what GetRun returned.
func (r *runRegistry) put(run *domain.BacktestRun) {
	cp := *run
	if el, ok := r.items[run.ID]; ok {
		el.Value.(*registryEntry).run = &cp
		r.order.MoveToFront(el)
		return
	}
	r.items[run.ID] = r.order.PushFront(&registryEntry{id: run.ID, run: &cp})
	for r.order.Len() > r.capacity {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.items, oldest.Value.(*registryEntry).id)
	}
}

// get does not touch recency; recency tracks writes, which is enough to
// keep live runs resident, and lets lookups run under a read lock.
func (r *runRegistry) get(id string) (*domain.BacktestRun, bool) {
	el, ok := r.items[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*registryEntry).run, true
}

func (r *runRegistry) len() int { return r.order.Len() }
