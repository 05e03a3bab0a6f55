package app

import (
	"context"
	"log/slog"
	"time"

	"bazaar_go/internal/domain"
	"bazaar_go/internal/engine"
	"bazaar_go/internal/infra"
	"bazaar_go/internal/infra/storage"
	"bazaar_go/internal/record"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Archive *record.Archive
	Book    *engine.Book
	Engine  *engine.Settlement

	breaker *infra.CircuitBreaker
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logging, the
// ledger archive, the snapshot database and the settlement engine, in
// that order. Persisted state is restored before the engine is handed
// out.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Bazaar...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	bounds := domain.Category{
		Categories:       cfg.Market.Categories,
		SubCategories:    cfg.Market.SubCategories,
		SubSubCategories: cfg.Market.SubSubCategories,
	}

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Load the transaction ledger
	archive := record.NewArchive(cfg.Records.Dir, bounds, nil)
	if err := archive.Load(); err != nil {
		return err
	}
	b.Archive = archive
	slog.Info("✅ Record archive loaded")

	// 5. Rebuild the live book from the last snapshot
	b.Book = engine.NewBook(bounds)
	quota := infra.NewQuota(cfg.Market.MaxEnquiriesPerPlayer)
	b.Engine = engine.NewSettlement(b.Book, archive, quota, cfg.Market.TaxPercent)

	state, err := store.LoadState()
	if err != nil {
		return err
	}
	if err := b.Engine.Restore(state); err != nil {
		return err
	}
	slog.Info("✅ Book restored", slog.Int("enquiries", len(state.Enquiries)))

	b.breaker = infra.NewCircuitBreaker("persistence", 3, 2, 30*time.Second)
	return nil
}

// RunFlushLoop periodically persists the ledger and the book snapshot
// until the context is cancelled. A misbehaving disk trips the breaker so
// the loop backs off instead of hammering it every tick.
func (b *Bootstrap) RunFlushLoop(ctx context.Context) {
	interval := time.Duration(b.Config.Records.FlushIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("🔄 Persistence loop started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.breaker.Allow() {
				slog.Warn("Skipping persistence cycle, breaker open")
				continue
			}
			if err := b.persist(); err != nil {
				b.breaker.RecordFailure()
				infra.GlobalMetrics.RecordFlushError()
				slog.Error("Persistence cycle failed", slog.Any("error", err))
				continue
			}
			b.breaker.RecordSuccess()
		}
	}
}

// Shutdown performs the final persistence pass and releases resources.
func (b *Bootstrap) Shutdown() {
	if err := b.persist(); err != nil {
		infra.GlobalMetrics.RecordFlushError()
		slog.Error("Final persistence failed", slog.Any("error", err))
	}
	if err := b.Storage.Close(); err != nil {
		slog.Error("Failed to close database", slog.Any("error", err))
	}
	slog.Info("✨ Shutdown complete", slog.Any("metrics", infra.GlobalMetrics.Snapshot()))
}

func (b *Bootstrap) persist() error {
	if err := b.Archive.Flush(); err != nil {
		return err
	}
	return b.Storage.SaveState(b.Engine.State())
}
