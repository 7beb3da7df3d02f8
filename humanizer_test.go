package humanizer_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/pipeline"
	"github.com/veritext/humanizer/plan"
	"github.com/veritext/humanizer/store/memory"
)

func newTestEngine(t *testing.T, opts ...humanizer.Option) *humanizer.Engine {
	t.Helper()

	h := humanizer.New(memory.New(), opts...)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() {
		if err := h.Stop(); err != nil {
			t.Errorf("stop engine: %v", err)
		}
	})
	return h
}

func TestLazyAccountCreation(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	info, err := h.Balance(ctx, "user_1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if info.Tier != plan.TierFree {
		t.Errorf("tier: got %s, want free", info.Tier)
	}
	if info.Balance != 100 || info.Ceiling != 100 {
		t.Errorf("got balance=%d ceiling=%d, want 100/100", info.Balance, info.Ceiling)
	}
	if info.PercentUsed != 0 {
		t.Errorf("percent used: got %d, want 0", info.PercentUsed)
	}
}

func TestDefaultTierOption(t *testing.T) {
	h := newTestEngine(t, humanizer.WithDefaultTier(plan.TierPremium))

	info, err := h.Balance(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if info.Tier != plan.TierPremium || info.Ceiling != 2000 {
		t.Errorf("got tier=%s ceiling=%d, want premium/2000", info.Tier, info.Ceiling)
	}
}

func TestReserveCommitRelease(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res, err := h.Reserve(ctx, "user_1", 30)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.State != credit.StateHeld {
		t.Errorf("state: got %s, want held", res.State)
	}

	// Balance drops at reserve time, not commit time
	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 70 {
		t.Errorf("balance after reserve: got %d, want 70", info.Balance)
	}

	if err := h.Commit(ctx, res.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	info, _ = h.Balance(ctx, "user_1")
	if info.Balance != 70 {
		t.Errorf("balance after commit: got %d, want 70", info.Balance)
	}

	// Release restores the amount
	res2, err := h.Reserve(ctx, "user_1", 20)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := h.Release(ctx, res2.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	info, _ = h.Balance(ctx, "user_1")
	if info.Balance != 70 {
		t.Errorf("balance after release: got %d, want 70", info.Balance)
	}
}

func TestReservationTerminatesExactlyOnce(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res, err := h.Reserve(ctx, "user_1", 10)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := h.Commit(ctx, res.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Replays of either terminal operation are rejected and change nothing
	if err := h.Commit(ctx, res.ID); !errors.Is(err, humanizer.ErrReservationTerminated) {
		t.Errorf("second commit: got %v, want ErrReservationTerminated", err)
	}
	if err := h.Release(ctx, res.ID); !errors.Is(err, humanizer.ErrReservationTerminated) {
		t.Errorf("release after commit: got %v, want ErrReservationTerminated", err)
	}

	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 90 {
		t.Errorf("balance: got %d, want 90", info.Balance)
	}
}

func TestReserveInsufficientCredits(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.Reserve(ctx, "user_1", 101); !errors.Is(err, humanizer.ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}

	// A failed reserve does not touch the balance
	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 100 {
		t.Errorf("balance: got %d, want 100", info.Balance)
	}

	// Reserving the exact balance succeeds and empties the account
	if _, err := h.Reserve(ctx, "user_1", 100); err != nil {
		t.Fatalf("reserve full balance: %v", err)
	}
	if _, err := h.Reserve(ctx, "user_1", 1); !errors.Is(err, humanizer.ErrInsufficientCredits) {
		t.Errorf("got %v, want ErrInsufficientCredits", err)
	}
}

func TestReserveValidation(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.Reserve(ctx, "user_1", 0); !errors.Is(err, humanizer.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := h.Reserve(ctx, "user_1", -5); !errors.Is(err, humanizer.ErrInvalidAmount) {
		t.Errorf("negative amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := h.Reserve(ctx, "", 1); !errors.Is(err, humanizer.ErrInvalidInput) {
		t.Errorf("empty user: got %v, want ErrInvalidInput", err)
	}
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	// Seed the account
	if _, err := h.Balance(ctx, "user_1"); err != nil {
		t.Fatalf("balance: %v", err)
	}

	// 100 credits, 200 concurrent one-credit reserves: exactly 100 may win
	const workers = 200
	var (
		wg        sync.WaitGroup
		succeeded int64
		mu        sync.Mutex
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Reserve(ctx, "user_1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 100 {
		t.Errorf("successful reserves: got %d, want 100", succeeded)
	}
	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 0 {
		t.Errorf("balance: got %d, want 0", info.Balance)
	}
}

func TestConcurrentHumanizeExactlyOneWins(t *testing.T) {
	// Each request costs the whole free allotment, so of two racing
	// humanize calls exactly one may complete and be charged.
	h := newTestEngine(t, humanizer.WithCostFunc(humanizer.FlatCost(100)))
	ctx := context.Background()

	if _, err := h.Balance(ctx, "user_1"); err != nil {
		t.Fatalf("balance: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		rejected  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Humanize(ctx, "user_1", "We should utilize this.", pipeline.LevelMedium)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				completed++
			case errors.Is(err, humanizer.ErrInsufficientCredits):
				rejected++
			default:
				t.Errorf("humanize: unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if completed != 1 || rejected != 1 {
		t.Errorf("got %d completed / %d rejected, want 1/1", completed, rejected)
	}
	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 0 {
		t.Errorf("balance: got %d, want 0", info.Balance)
	}
}

func TestHumanizeChargesOnlyOnDelivery(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	res, err := h.Humanize(ctx, "user_1", "We should utilize this.", pipeline.LevelMedium)
	if err != nil {
		t.Fatalf("humanize: %v", err)
	}
	if !strings.Contains(res.Result, "use") {
		t.Errorf("result: got %q, want substitution of utilize", res.Result)
	}
	if res.CreditsCharged != 1 {
		t.Errorf("credits charged: got %d, want 1", res.CreditsCharged)
	}

	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 99 {
		t.Errorf("balance: got %d, want 99", info.Balance)
	}
}

func TestHumanizeEmptyInput(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t "} {
		if _, err := h.Humanize(ctx, "user_1", text, pipeline.LevelLight); !errors.Is(err, humanizer.ErrEmptyInput) {
			t.Errorf("text %q: got %v, want ErrEmptyInput", text, err)
		}
	}

	// Validation failures never charge; the account is not even created
	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 100 {
		t.Errorf("balance: got %d, want 100", info.Balance)
	}
}

func TestHumanizeInvalidLevel(t *testing.T) {
	h := newTestEngine(t)

	_, err := h.Humanize(context.Background(), "user_1", "Some text.", pipeline.Level("extreme"))
	if !errors.Is(err, humanizer.ErrInvalidLevel) {
		t.Fatalf("got %v, want ErrInvalidLevel", err)
	}
}

func TestHumanizeInsufficientCredits(t *testing.T) {
	h := newTestEngine(t, humanizer.WithCostFunc(humanizer.FlatCost(101)))

	_, err := h.Humanize(context.Background(), "user_1", "Some text.", pipeline.LevelLight)
	if !errors.Is(err, humanizer.ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}
}

func TestHumanizeCancellationReleasesReservation(t *testing.T) {
	h := newTestEngine(t, humanizer.WithProcessingDelay(500*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())

	// Seed the account first so Balance below reads post-release state
	if _, err := h.Balance(ctx, "user_1"); err != nil {
		t.Fatalf("balance: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.Humanize(ctx, "user_1", "Some text to transform.", pipeline.LevelLight)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	// The reservation was released despite the cancelled request context
	info, err := h.Balance(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if info.Balance != 100 {
		t.Errorf("balance after cancellation: got %d, want 100", info.Balance)
	}
}

func TestWordCost(t *testing.T) {
	cost := humanizer.WordCost(10)

	tests := []struct {
		text string
		want int64
	}{
		{"one", 1},
		{"exactly ten words here to make the cost equal one", 1},
		{strings.Repeat("word ", 11), 2},
		{"", 1},
	}
	for _, tt := range tests {
		if got := cost(tt.text); got != tt.want {
			t.Errorf("WordCost(%q): got %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestGrantCreditsClampedToCeiling(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.Reserve(ctx, "user_1", 40); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	info, err := h.GrantCredits(ctx, "user_1", 1000)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if info.Balance != 100 {
		t.Errorf("balance: got %d, want 100 (clamped to ceiling)", info.Balance)
	}

	if _, err := h.GrantCredits(ctx, "user_1", 0); !errors.Is(err, humanizer.ErrInvalidAmount) {
		t.Errorf("zero grant: got %v, want ErrInvalidAmount", err)
	}
}

func TestSetPlanRecomputesCeiling(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.Balance(ctx, "user_1"); err != nil {
		t.Fatalf("balance: %v", err)
	}

	// Upgrade raises the ceiling; balance is unchanged
	if err := h.SetPlan(ctx, "user_1", plan.TierPremium); err != nil {
		t.Fatalf("set plan: %v", err)
	}
	info, _ := h.Balance(ctx, "user_1")
	if info.Ceiling != 2000 || info.Balance != 100 {
		t.Errorf("after upgrade: got balance=%d ceiling=%d, want 100/2000", info.Balance, info.Ceiling)
	}

	// Refill, then downgrade clamps the balance down
	if err := h.RenewCycle(ctx, "user_1"); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if err := h.SetPlan(ctx, "user_1", plan.TierBasic); err != nil {
		t.Fatalf("set plan: %v", err)
	}
	info, _ = h.Balance(ctx, "user_1")
	if info.Ceiling != 500 || info.Balance != 500 {
		t.Errorf("after downgrade: got balance=%d ceiling=%d, want 500/500", info.Balance, info.Ceiling)
	}

	if err := h.SetPlan(ctx, "user_1", plan.Tier("platinum")); !errors.Is(err, humanizer.ErrUnknownTier) {
		t.Errorf("unknown tier: got %v, want ErrUnknownTier", err)
	}
}

func TestSetPlanCreatesAccount(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if err := h.SetPlan(ctx, "user_new", plan.TierEnterprise); err != nil {
		t.Fatalf("set plan: %v", err)
	}
	info, _ := h.Balance(ctx, "user_new")
	if info.Tier != plan.TierEnterprise || info.Balance != 10000 {
		t.Errorf("got tier=%s balance=%d, want enterprise/10000", info.Tier, info.Balance)
	}
}

func TestRenewCycleRefillsToCeiling(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.Reserve(ctx, "user_1", 60); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := h.RenewCycle(ctx, "user_1"); err != nil {
		t.Fatalf("renew: %v", err)
	}

	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 100 {
		t.Errorf("balance: got %d, want 100", info.Balance)
	}
}

func TestReservationSweepReleasesExpired(t *testing.T) {
	h := newTestEngine(t, humanizer.WithReservationTTL(30*time.Millisecond, 20*time.Millisecond))
	ctx := context.Background()

	if _, err := h.Reserve(ctx, "user_1", 25); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	info, _ := h.Balance(ctx, "user_1")
	if info.Balance != 75 {
		t.Fatalf("balance: got %d, want 75", info.Balance)
	}

	// Wait for the TTL and at least one sweep pass
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, _ = h.Balance(ctx, "user_1")
		if info.Balance == 100 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("expired reservation was not released, balance stuck at %d", info.Balance)
}

func TestUsageHistoryRecorded(t *testing.T) {
	h := newTestEngine(t, humanizer.WithUsageConfig(1, 10*time.Millisecond))
	ctx := context.Background()

	if _, err := h.Humanize(ctx, "user_1", "We should utilize this approach.", pipeline.LevelMedium); err != nil {
		t.Fatalf("humanize: %v", err)
	}
	if _, err := h.Humanize(ctx, "user_1", "Additionally it works.", pipeline.LevelStrong); err != nil {
		t.Fatalf("humanize: %v", err)
	}

	// Wait for the flush worker
	var events []*credit.UsageEvent
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		events, err = h.Usage(ctx, "user_1", credit.QueryOpts{})
		if err != nil {
			t.Fatalf("usage: %v", err)
		}
		if len(events) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2", len(events))
	}

	// Level filter
	filtered, err := h.Usage(ctx, "user_1", credit.QueryOpts{Level: "strong"})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Level != "strong" {
		t.Errorf("filtered: got %d events, want 1 strong event", len(filtered))
	}

	total, err := h.UsageTotal(ctx, "user_1", time.Time{})
	if err != nil {
		t.Fatalf("usage total: %v", err)
	}
	if total != 2 {
		t.Errorf("total: got %d, want 2", total)
	}
}

// ctxAwareStore rejects usage ingestion once its context is cancelled, the
// way the durable drivers do.
type ctxAwareStore struct {
	*memory.Store
}

func (s *ctxAwareStore) IngestUsage(ctx context.Context, events []*credit.UsageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.IngestUsage(ctx, events)
}

func TestStopFlushesBufferedUsage(t *testing.T) {
	st := &ctxAwareStore{Store: memory.New()}
	h := humanizer.New(st, humanizer.WithUsageConfig(64, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.Start(ctx); err != nil {
		t.Fatalf("start engine: %v", err)
	}

	if _, err := h.Humanize(context.Background(), "user_1", "We should utilize this.", pipeline.LevelMedium); err != nil {
		t.Fatalf("humanize: %v", err)
	}

	// A signal-driven server cancels the root context before stopping the
	// engine; the buffered event must still reach the store.
	cancel()
	if err := h.Stop(); err != nil {
		t.Fatalf("stop engine: %v", err)
	}

	events, err := st.QueryUsage(context.Background(), "user_1", credit.QueryOpts{})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events after shutdown: got %d, want 1", len(events))
	}
}

func TestProjectLifecycle(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	proj, err := h.SaveProject(ctx, "user_1", "Essay intro", "The original text.", "The humanized text.")
	if err != nil {
		t.Fatalf("save project: %v", err)
	}
	if proj.Favorite {
		t.Error("new project should not be a favorite")
	}

	proj, err = h.ToggleFavorite(ctx, proj.ID)
	if err != nil {
		t.Fatalf("toggle favorite: %v", err)
	}
	if !proj.Favorite {
		t.Error("expected favorite after toggle")
	}

	got, err := h.GetProject(ctx, proj.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Title != "Essay intro" {
		t.Errorf("title: got %q", got.Title)
	}

	if err := h.DeleteProject(ctx, proj.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := h.GetProject(ctx, proj.ID); !errors.Is(err, humanizer.ErrProjectNotFound) {
		t.Errorf("get deleted: got %v, want ErrProjectNotFound", err)
	}
}

func TestSaveProjectValidation(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.SaveProject(ctx, "user_1", "  ", "text", "result"); err == nil {
		t.Error("expected validation error for blank title")
	}
	if _, err := h.SaveProject(ctx, "", "title", "text", "result"); !errors.Is(err, humanizer.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestPercentUsedRounding(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.Reserve(ctx, "user_1", 33); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	info, _ := h.Balance(ctx, "user_1")
	if info.PercentUsed != 33 {
		t.Errorf("percent used: got %d, want 33", info.PercentUsed)
	}
}
