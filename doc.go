// Package humanizer provides a credit-metered text transformation engine for
// Go applications.
//
// Humanizer is designed as a library, not a service. Import it directly into
// your Go application for maximum performance and flexibility. It provides:
//
//   - A deterministic text transformation pipeline with three intensity levels
//   - A crash-safe credit ledger with reserve/commit/release accounting
//   - Plan tiers mapping to monthly credit allotments
//   - High-throughput usage recording with batched ingestion
//   - Saved projects for retaining transformation results
//   - Pluggable lifecycle hooks for metrics and audit trails
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/veritext/humanizer"
//	    "github.com/veritext/humanizer/store/sqlite"
//	)
//
//	// Initialize store
//	store, err := sqlite.Open("humanizer.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	h := humanizer.New(store)
//
//	// Start the engine (runs migrations, begins background workers)
//	if err := h.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Stop()
//
// # Core Concepts
//
// Every request is metered against a per-user credit balance. Accounts are
// created lazily on first access, seeded to the full allotment of their plan
// tier:
//
//	info, err := h.Balance(ctx, userID)
//	fmt.Println(info.Balance, "of", info.Ceiling)
//
// Humanize runs one transformation, charging credits only when output is
// delivered:
//
//	res, err := h.Humanize(ctx, userID, text, pipeline.LevelMedium)
//	if errors.Is(err, humanizer.ErrInsufficientCredits) {
//	    // Prompt for an upgrade
//	}
//
// A failed or cancelled request releases its reservation; the user is never
// charged for output they did not receive.
//
// # Credit Accounting
//
// The ledger uses decrement-on-reserve accounting: Reserve subtracts the
// amount from the balance immediately and records a held reservation, which
// is then terminated by exactly one Commit (forfeit) or Release (refund).
// A held reservation that outlives its TTL is auto-released by a background
// sweep, so abandoned requests cannot strand credits.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	rsv_01h2xcejqtf2nbrexx3vqjhp41   // Reservation ID
//	proj_01h455vb4pex5vsknk084sn02q  // Project ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package humanizer
