package humanizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/pipeline"
	"github.com/veritext/humanizer/plan"
	"github.com/veritext/humanizer/plugin"
	"github.com/veritext/humanizer/project"
	"github.com/veritext/humanizer/store"
	"github.com/veritext/humanizer/types"
)

// CostFunc computes the credit cost of a humanize request from its input
// text. Results below one credit are charged as one credit.
type CostFunc func(text string) int64

// FlatCost charges a fixed number of credits per request regardless of
// input length.
func FlatCost(credits int64) CostFunc {
	return func(string) int64 { return credits }
}

// WordCost charges one credit per wordsPerCredit words, rounded up.
func WordCost(wordsPerCredit int) CostFunc {
	return func(text string) int64 {
		words := pipeline.WordCount(text)
		cost := int64((words + wordsPerCredit - 1) / wordsPerCredit)
		if cost < 1 {
			cost = 1
		}
		return cost
	}
}

// Engine is the credit-metered text humanization engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	catalog     plan.Catalog
	defaultTier plan.Tier
	rules       *pipeline.RuleSet
	costFn      CostFunc

	// Simulated processing time per request; honors context cancellation.
	processingDelay time.Duration

	// Per-account mutual exclusion; operations for different users proceed
	// fully in parallel.
	accountLocks sync.Map // userID -> *sync.Mutex

	// Background workers
	usageBuffer chan *credit.UsageEvent
	stopChan    chan struct{}
	wg          sync.WaitGroup

	// Configuration
	usageBatchSize     int
	usageFlushInterval time.Duration
	reservationTTL     time.Duration
	sweepInterval      time.Duration
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		catalog:            plan.Default(),
		defaultTier:        plan.TierFree,
		rules:              pipeline.DefaultRuleSet(),
		costFn:             FlatCost(1),
		usageBuffer:        make(chan *credit.UsageEvent, 4096),
		stopChan:           make(chan struct{}),
		usageBatchSize:     64,
		usageFlushInterval: 5 * time.Second,
		reservationTTL:     2 * time.Minute,
		sweepInterval:      30 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog replaces the default plan catalog.
func WithCatalog(c plan.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithDefaultTier sets the tier assigned to lazily created accounts.
func WithDefaultTier(tier plan.Tier) Option {
	return func(e *Engine) {
		e.defaultTier = tier
	}
}

// WithRuleSet replaces the default transformation rule set.
func WithRuleSet(rs *pipeline.RuleSet) Option {
	return func(e *Engine) {
		e.rules = rs
	}
}

// WithCostFunc replaces the flat one-credit-per-request cost model.
func WithCostFunc(fn CostFunc) Option {
	return func(e *Engine) {
		e.costFn = fn
	}
}

// WithProcessingDelay adds simulated processing latency to each request.
// The delay is interruptible: a cancelled request releases its reservation.
func WithProcessingDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.processingDelay = d
	}
}

// WithUsageConfig configures usage event batching.
func WithUsageConfig(batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		e.usageBatchSize = batchSize
		e.usageFlushInterval = flushInterval
	}
}

// WithReservationTTL bounds the reserve-to-commit window. Held reservations
// older than the TTL are auto-released by the sweep worker.
func WithReservationTTL(ttl, sweepInterval time.Duration) Option {
	return func(e *Engine) {
		e.reservationTTL = ttl
		e.sweepInterval = sweepInterval
	}
}

// Start migrates the store, recovers orphaned reservations, and begins
// background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Reservations left held by a crash are compensated, not leaked.
	if n := e.sweepExpired(ctx); n > 0 {
		e.logger.Info("recovered orphaned reservations", "count", n)
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(2)
	go e.usageFlushWorker(ctx)
	go e.reservationSweepWorker(ctx)

	e.logger.Info("humanizer engine started",
		"usage_batch_size", e.usageBatchSize,
		"usage_flush_interval", e.usageFlushInterval,
		"reservation_ttl", e.reservationTTL,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Credit Ledger
// ──────────────────────────────────────────────────

// BalanceInfo is a snapshot of an account's spendable credits.
type BalanceInfo struct {
	UserID      string    `json:"user_id"`
	Tier        plan.Tier `json:"tier"`
	Balance     int64     `json:"balance"`
	Ceiling     int64     `json:"ceiling"`
	PercentUsed int       `json:"percentage_used"`
}

// Balance returns the current balance snapshot for a user, creating the
// account on first access.
func (e *Engine) Balance(ctx context.Context, userID string) (*BalanceInfo, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}

	unlock := e.lockAccount(userID)
	defer unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &BalanceInfo{
		UserID:      acct.UserID,
		Tier:        acct.Tier,
		Balance:     acct.Balance,
		Ceiling:     acct.Ceiling,
		PercentUsed: acct.PercentUsed(),
	}, nil
}

// Reserve atomically claims amount credits from a user's balance. The
// balance is decremented immediately; the claim must later be committed or
// released exactly once. This decrement-on-reserve policy closes the
// time-of-check/time-of-use gap between concurrent reserves.
func (e *Engine) Reserve(ctx context.Context, userID string, amount int64) (*credit.Reservation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	unlock := e.lockAccount(userID)
	defer unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if acct.Balance < amount {
		e.plugins.EmitCreditsExhausted(ctx, userID, acct.Balance, amount)
		return nil, ErrInsufficientCredits
	}

	acct.Balance -= amount
	acct.Touch()
	if err := e.store.UpdateAccount(ctx, acct); err != nil {
		return nil, err
	}

	res := credit.NewReservation(userID, amount, e.reservationTTL)
	if err := e.store.CreateReservation(ctx, res); err != nil {
		// The reservation never came into existence; put the credits back.
		acct.Balance += amount
		acct.Touch()
		if rerr := e.store.UpdateAccount(ctx, acct); rerr != nil {
			e.logger.Error("failed to restore balance after reservation write failure",
				"user_id", userID, "amount", amount, "error", rerr)
		}
		return nil, err
	}

	e.plugins.EmitReservationHeld(ctx, res)
	return res, nil
}

// Commit transitions a held reservation to committed. The balance was
// already decremented at reserve time, so nothing else changes.
func (e *Engine) Commit(ctx context.Context, resID id.ReservationID) error {
	res, err := e.store.GetReservation(ctx, resID)
	if err != nil {
		return err
	}

	unlock := e.lockAccount(res.UserID)
	defer unlock()

	// Re-read under the account lock; the sweep worker may have raced us.
	res, err = e.store.GetReservation(ctx, resID)
	if err != nil {
		return err
	}
	if res.State != credit.StateHeld {
		return ErrReservationTerminated
	}

	now := time.Now().UTC()
	res.State = credit.StateCommitted
	res.TerminatedAt = &now
	res.Touch()
	if err := e.store.UpdateReservation(ctx, res); err != nil {
		return err
	}

	e.plugins.EmitReservationCommitted(ctx, res)
	return nil
}

// Release transitions a held reservation to released and restores its
// amount to the balance, capped at the ceiling.
func (e *Engine) Release(ctx context.Context, resID id.ReservationID) error {
	res, err := e.store.GetReservation(ctx, resID)
	if err != nil {
		return err
	}

	unlock := e.lockAccount(res.UserID)
	defer unlock()

	res, err = e.store.GetReservation(ctx, resID)
	if err != nil {
		return err
	}
	if res.State != credit.StateHeld {
		return ErrReservationTerminated
	}

	now := time.Now().UTC()
	res.State = credit.StateReleased
	res.TerminatedAt = &now
	res.Touch()
	if err := e.store.UpdateReservation(ctx, res); err != nil {
		return err
	}

	acct, err := e.loadAccount(ctx, res.UserID)
	if err != nil {
		return err
	}
	acct.Balance = min(acct.Ceiling, acct.Balance+res.Amount)
	acct.Touch()
	if err := e.store.UpdateAccount(ctx, acct); err != nil {
		return err
	}

	e.plugins.EmitReservationReleased(ctx, res)
	return nil
}

// GrantCredits adds credits to a user's balance, clamped to the plan
// ceiling. Invoked on successful payment by an external trigger.
func (e *Engine) GrantCredits(ctx context.Context, userID string, amount int64) (*BalanceInfo, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	unlock := e.lockAccount(userID)
	defer unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	acct.Balance = min(acct.Ceiling, acct.Balance+amount)
	acct.Touch()
	if err := e.store.UpdateAccount(ctx, acct); err != nil {
		return nil, err
	}

	e.plugins.EmitCreditsGranted(ctx, userID, amount, acct.Balance)
	return &BalanceInfo{
		UserID:      acct.UserID,
		Tier:        acct.Tier,
		Balance:     acct.Balance,
		Ceiling:     acct.Ceiling,
		PercentUsed: acct.PercentUsed(),
	}, nil
}

// SetPlan moves a user to a new plan tier. The ceiling is recomputed from
// the catalog and the balance clamped down if it now exceeds it. In-flight
// reservations are not affected.
func (e *Engine) SetPlan(ctx context.Context, userID string, tier plan.Tier) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}
	if !tier.Valid() {
		return ErrUnknownTier
	}

	unlock := e.lockAccount(userID)
	defer unlock()

	acct, err := e.store.GetAccount(ctx, userID)
	if IsNotFound(err) {
		acct = credit.NewAccount(userID, tier, e.catalog.Ceiling(tier))
		if err := e.store.CreateAccount(ctx, acct); err != nil {
			return err
		}
		e.plugins.EmitAccountCreated(ctx, acct)
		return nil
	}
	if err != nil {
		return err
	}

	oldTier := acct.Tier
	acct.Tier = tier
	acct.Ceiling = e.catalog.Ceiling(tier)
	if acct.Balance > acct.Ceiling {
		acct.Balance = acct.Ceiling
	}
	acct.Touch()
	if err := e.store.UpdateAccount(ctx, acct); err != nil {
		return err
	}

	e.plugins.EmitPlanChanged(ctx, userID, string(oldTier), string(tier))
	return nil
}

// RenewCycle refills a user's balance to the plan ceiling. Invoked at the
// start of each billing cycle by an external trigger; unused credits do not
// roll over.
func (e *Engine) RenewCycle(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidInput
	}

	unlock := e.lockAccount(userID)
	defer unlock()

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return err
	}

	acct.Balance = acct.Ceiling
	acct.Touch()
	if err := e.store.UpdateAccount(ctx, acct); err != nil {
		return err
	}

	e.plugins.EmitCycleRenewed(ctx, userID, acct.Balance)
	return nil
}

// ──────────────────────────────────────────────────
// Humanize
// ──────────────────────────────────────────────────

// HumanizeResult is the outcome of a completed humanize request.
type HumanizeResult struct {
	Result         string         `json:"result"`
	CreditsCharged int64          `json:"credits_charged"`
	Level          pipeline.Level `json:"level"`
}

// Humanize runs one metered transformation request: validate, reserve,
// transform, then commit on success or release on failure. A request is
// charged only when output is delivered.
func (e *Engine) Humanize(ctx context.Context, userID, text string, level pipeline.Level) (*HumanizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if !level.Valid() {
		return nil, ErrInvalidLevel
	}

	cost := e.costFn(text)
	if cost < 1 {
		cost = 1
	}

	res, err := e.Reserve(ctx, userID, cost)
	if err != nil {
		return nil, err
	}

	out, err := e.runPipeline(ctx, text, level)
	if err == nil {
		// Cancellation before commit releases, never commits.
		err = ctx.Err()
	}
	if err != nil {
		e.releaseAfterFailure(ctx, res.ID)
		return nil, err
	}

	if err := e.Commit(ctx, res.ID); err != nil {
		e.logger.Error("commit failed after successful transform",
			"user_id", userID, "reservation_id", res.ID.String(), "error", err)
		return nil, err
	}

	e.recordUsage(&credit.UsageEvent{
		ID:             id.NewUsageEventID(),
		UserID:         userID,
		Level:          string(level),
		CreditsCharged: cost,
		WordCount:      pipeline.WordCount(text),
		Timestamp:      time.Now().UTC(),
	})
	e.plugins.EmitHumanizeCompleted(ctx, userID, string(level), cost)

	return &HumanizeResult{Result: out, CreditsCharged: cost, Level: level}, nil
}

// runPipeline executes the transformation stage. The pipeline is a total
// function over valid input, but an unexpected panic is converted into a
// retryable fault so the caller is never silently debited.
func (e *Engine) runPipeline(ctx context.Context, text string, level pipeline.Level) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTransformFault, r)
		}
	}()

	if e.processingDelay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.processingDelay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return pipeline.Transform(text, level, e.rules), nil
}

// releaseAfterFailure releases a reservation on the failure path. The
// request context may already be cancelled, so the release itself runs
// detached from it.
func (e *Engine) releaseAfterFailure(ctx context.Context, resID id.ReservationID) {
	if err := e.Release(context.WithoutCancel(ctx), resID); err != nil {
		e.logger.Error("release after failed request",
			"reservation_id", resID.String(), "error", err)
	}
}

// ──────────────────────────────────────────────────
// Usage History
// ──────────────────────────────────────────────────

// Usage queries a user's recorded humanize history.
func (e *Engine) Usage(ctx context.Context, userID string, opts credit.QueryOpts) ([]*credit.UsageEvent, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	return e.store.QueryUsage(ctx, userID, opts)
}

// UsageTotal aggregates credits charged for a user since a point in time.
func (e *Engine) UsageTotal(ctx context.Context, userID string, since time.Time) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidInput
	}
	return e.store.UsageTotal(ctx, userID, since)
}

// recordUsage enqueues a usage event for batched ingestion (non-blocking).
func (e *Engine) recordUsage(event *credit.UsageEvent) {
	select {
	case e.usageBuffer <- event:
	default:
		e.logger.Warn("usage buffer full, dropping event",
			"user_id", event.UserID, "level", event.Level)
	}
}

// usageFlushWorker flushes usage events to the store.
func (e *Engine) usageFlushWorker(ctx context.Context) {
	defer e.wg.Done()

	batch := make([]*credit.UsageEvent, 0, e.usageBatchSize)
	ticker := time.NewTicker(e.usageFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Drain anything still queued, then final flush.
			for {
				select {
				case event := <-e.usageBuffer:
					batch = append(batch, event)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				// The caller's context is typically cancelled by the time
				// Stop runs; the final flush must still reach the store.
				e.flushUsageBatch(context.WithoutCancel(ctx), batch)
			}
			return

		case event := <-e.usageBuffer:
			batch = append(batch, event)
			if len(batch) >= e.usageBatchSize {
				e.flushUsageBatch(ctx, batch)
				batch = make([]*credit.UsageEvent, 0, e.usageBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				e.flushUsageBatch(ctx, batch)
				batch = make([]*credit.UsageEvent, 0, e.usageBatchSize)
			}
		}
	}
}

func (e *Engine) flushUsageBatch(ctx context.Context, batch []*credit.UsageEvent) {
	start := time.Now()

	if err := e.store.IngestUsage(ctx, batch); err != nil {
		e.logger.Error("failed to flush usage batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	e.plugins.EmitUsageFlushed(ctx, len(batch), elapsed)

	e.logger.Debug("flushed usage batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// reservationSweepWorker auto-releases held reservations that outlive the
// reserve-to-commit window, compensating for client disconnects.
func (e *Engine) reservationSweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.sweepExpired(ctx)
		}
	}
}

// sweepExpired releases all currently expired reservations and returns how
// many it released.
func (e *Engine) sweepExpired(ctx context.Context) int {
	expired, err := e.store.ListExpiredReservations(ctx, time.Now().UTC())
	if err != nil {
		e.logger.Error("failed to list expired reservations", "error", err)
		return 0
	}

	released := 0
	for _, res := range expired {
		if err := e.Release(ctx, res.ID); err != nil {
			// A concurrent commit or release winning the race is fine.
			if !IsIntegrityError(err) {
				e.logger.Error("failed to release expired reservation",
					"reservation_id", res.ID.String(), "error", err)
			}
			continue
		}
		released++
		e.plugins.EmitReservationExpired(ctx, res)
		e.logger.Info("released expired reservation",
			"reservation_id", res.ID.String(),
			"user_id", res.UserID,
			"amount", res.Amount,
		)
	}
	return released
}

// ──────────────────────────────────────────────────
// Saved Projects
// ──────────────────────────────────────────────────

// excerptLen bounds the stored input excerpt.
const excerptLen = 120

// SaveProject stores a humanization result on the user's dashboard.
func (e *Engine) SaveProject(ctx context.Context, userID, title, text, result string) (*project.Project, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(title) == "" {
		return nil, ValidationError{Field: "title", Message: "must not be empty"}
	}

	proj := &project.Project{
		Entity:  types.NewEntity(),
		ID:      id.NewProjectID(),
		UserID:  userID,
		Title:   title,
		Excerpt: excerpt(text),
		Result:  result,
	}
	if err := e.store.CreateProject(ctx, proj); err != nil {
		return nil, err
	}

	e.plugins.EmitProjectSaved(ctx, proj)
	return proj, nil
}

// GetProject retrieves a saved project by ID.
func (e *Engine) GetProject(ctx context.Context, projID id.ProjectID) (*project.Project, error) {
	return e.store.GetProject(ctx, projID)
}

// ListProjects lists a user's saved projects, newest first.
func (e *Engine) ListProjects(ctx context.Context, userID string, opts project.ListOpts) ([]*project.Project, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	return e.store.ListProjects(ctx, userID, opts)
}

// ToggleFavorite flips the favorite flag on a saved project.
func (e *Engine) ToggleFavorite(ctx context.Context, projID id.ProjectID) (*project.Project, error) {
	proj, err := e.store.GetProject(ctx, projID)
	if err != nil {
		return nil, err
	}

	proj.Favorite = !proj.Favorite
	proj.Touch()
	if err := e.store.UpdateProject(ctx, proj); err != nil {
		return nil, err
	}
	return proj, nil
}

// DeleteProject removes a saved project.
func (e *Engine) DeleteProject(ctx context.Context, projID id.ProjectID) error {
	return e.store.DeleteProject(ctx, projID)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// lockAccount acquires the per-account mutex, creating it on first use.
func (e *Engine) lockAccount(userID string) func() {
	v, _ := e.accountLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// loadAccount fetches an account, creating it lazily on first access seeded
// to the full ceiling of the default tier. Caller must hold the account lock.
func (e *Engine) loadAccount(ctx context.Context, userID string) (*credit.Account, error) {
	acct, err := e.store.GetAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	acct = credit.NewAccount(userID, e.defaultTier, e.catalog.Ceiling(e.defaultTier))
	if err := e.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}
	e.plugins.EmitAccountCreated(ctx, acct)
	return acct, nil
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptLen {
		return text
	}
	cut := text[:excerptLen]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
