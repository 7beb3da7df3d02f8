package humanizer_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/pipeline"
	"github.com/veritext/humanizer/plan"
	"github.com/veritext/humanizer/store/memory"
)

// TestDocumentationExamples verifies that the examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use sqlite or mongo in production)
		store := memory.New()

		// Initialize the engine
		h := humanizer.New(store,
			humanizer.WithLogger(slog.Default()),
			humanizer.WithUsageConfig(100, 5*time.Second),
			humanizer.WithReservationTTL(time.Minute, 10*time.Second),
		)

		// Start the engine
		ctx := context.Background()
		if err := h.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer h.Stop()

		// First access creates the account at the free-tier allotment
		info, err := h.Balance(ctx, "user_123")
		if err != nil {
			t.Fatal(err)
		}
		if info.Balance != 100 {
			t.Fatalf("expected free-tier allotment of 100, got %d", info.Balance)
		}

		// Run a humanize request
		res, err := h.Humanize(ctx, "user_123", "We should utilize this approach.", pipeline.LevelMedium)
		if err != nil {
			t.Fatal(err)
		}
		if res.Result == "" {
			t.Fatal("expected transformed output")
		}
		if res.CreditsCharged != 1 {
			t.Fatalf("expected 1 credit charged, got %d", res.CreditsCharged)
		}

		// Upgrade the plan
		if err := h.SetPlan(ctx, "user_123", plan.TierPremium); err != nil {
			t.Fatal(err)
		}

		// Save the result as a project
		proj, err := h.SaveProject(ctx, "user_123", "First draft", "We should utilize this approach.", res.Result)
		if err != nil {
			t.Fatal(err)
		}
		if proj.ID.IsNil() {
			t.Fatal("expected project ID")
		}
	})

	t.Run("InsufficientCreditsExample", func(t *testing.T) {
		store := memory.New()
		h := humanizer.New(store, humanizer.WithCostFunc(humanizer.FlatCost(500)))

		ctx := context.Background()
		if err := h.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer h.Stop()

		// Free tier holds 100 credits; a 500-credit request is rejected
		_, err := h.Humanize(ctx, "user_456", "Some text.", pipeline.LevelLight)
		if !errors.Is(err, humanizer.ErrInsufficientCredits) {
			t.Fatalf("expected ErrInsufficientCredits, got %v", err)
		}
	})
}
