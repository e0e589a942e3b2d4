// Command syncer runs one sync for every configured (business, platform)
// source and exits. It is meant for cron.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"reviewpulse/internal/adapters/observability"
	"reviewpulse/internal/bootstrap"
	"reviewpulse/internal/domain"
	"reviewpulse/internal/shared"
)

func main() {
	business := flag.String("business", "", "only sync this business")
	analyze := flag.Bool("analyze-missing", true, "retry enrichment for unanalyzed reviews afterwards")
	flag.Parse()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config invalid")
	}
	log.Logger = observability.NewLogger(observability.LogOptions{
		Env:        cfg.AppEnv,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	observability.Serve(cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}
	defer a.Close()

	srcs, err := a.Repo.ListSources(ctx, *business)
	if err != nil {
		log.Fatal().Err(err).Msg("list sources failed")
	}
	log.Info().Int("sources", len(srcs)).Int("workers", cfg.Workers).Msg("syncer starting")

	sem := semaphore.NewWeighted(int64(max(cfg.Workers, 1)))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		states  = map[domain.SyncState]int{}
		touched = map[string]struct{}{}
	)
	for _, src := range srcs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("interrupted, not starting remaining syncs")
			break
		}
		wg.Add(1)
		go func(src domain.Source) {
			defer wg.Done()
			defer sem.Release(1)

			sctx, cancel := context.WithTimeout(ctx, cfg.SyncTimeout)
			defer cancel()
			run, _ := a.Sync.Sync(sctx, src.BusinessID, src.Platform)

			mu.Lock()
			states[run.State]++
			touched[src.BusinessID] = struct{}{}
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	if *analyze && ctx.Err() == nil {
		for biz := range touched {
			if _, err := a.Analysis.AnalyzeMissing(ctx, biz, 0); err != nil {
				log.Warn().Err(err).Str("business", biz).Msg("analyze missing failed")
			}
		}
	}

	ev := log.Info()
	for st, n := range states {
		ev = ev.Int(string(st), n)
	}
	ev.Msg("syncer completed")
}
