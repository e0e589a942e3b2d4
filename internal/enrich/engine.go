// Package enrich runs reviews through the classifier in small concurrent
// batches and writes results back one row at a time.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"reviewpulse/internal/adapters/observability"
	"reviewpulse/internal/domain"
)

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	// ItemTimeout bounds one classifier call; zero leaves it to ctx.
	ItemTimeout time.Duration
}

// Outcome is the result for one input. Exactly one of Result and Err is set.
type Outcome struct {
	Result *domain.AnalysisResult
	Err    error
}

type Engine struct {
	cls   domain.Classifier
	store domain.AnalysisWriter
	cfg   Config
	// sleep is swapped in tests
	sleep func(context.Context, time.Duration) error
}

func NewEngine(cls domain.Classifier, store domain.AnalysisWriter, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	return &Engine{cls: cls, store: store, cfg: cfg, sleep: sleepCtx}
}

// Analyze classifies inputs in chunks of BatchSize. Items of one chunk run
// concurrently; chunks run one after another with BatchDelay in between.
// Outcomes line up with inputs. A cancelled ctx fails the remaining items.
func (e *Engine) Analyze(ctx context.Context, inputs []domain.AnalysisInput) []Outcome {
	out := make([]Outcome, len(inputs))
	for start := 0; start < len(inputs); start += e.cfg.BatchSize {
		if start > 0 {
			if err := e.sleep(ctx, e.cfg.BatchDelay); err != nil {
				for i := start; i < len(inputs); i++ {
					out[i] = Outcome{Err: err}
				}
				return out
			}
		}
		end := min(start+e.cfg.BatchSize, len(inputs))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i] = e.classify(ctx, inputs[i])
			}(i)
		}
		wg.Wait()
	}
	return out
}

func (e *Engine) classify(ctx context.Context, in domain.AnalysisInput) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = Outcome{Err: fmt.Errorf("classifier panic: %v", r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}
	if e.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ItemTimeout)
		defer cancel()
	}
	res, err := e.cls.Classify(ctx, in)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Result: &res}
}

// Enrich analyzes reviews and persists each result. Classification and
// write-back failures are collected per item and never abort the pass.
func (e *Engine) Enrich(ctx context.Context, reviews []domain.Review) domain.EnrichReport {
	inputs := make([]domain.AnalysisInput, len(reviews))
	for i, r := range reviews {
		inputs[i] = domain.AnalysisInput{Text: r.BodyText, Rating: r.Rating}
	}

	var rep domain.EnrichReport
	for i, o := range e.Analyze(ctx, inputs) {
		ref := reviews[i].ID
		err := o.Err
		if err == nil {
			err = e.store.ApplyAnalysis(ctx, ref, *o.Result)
		}
		if err != nil {
			ie := &domain.EnrichmentItemError{ItemRef: ref, Err: err}
			log.Warn().Err(ie).Str("review", ref).Str("business", reviews[i].BusinessID).Msg("enrichment failed")
			observability.ObserveEnrich("failed")
			rep.Failures = append(rep.Failures, domain.ItemFailure{ItemRef: ref, Reason: err.Error()})
			continue
		}
		observability.ObserveEnrich("ok")
		rep.Enriched++
	}
	return rep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
