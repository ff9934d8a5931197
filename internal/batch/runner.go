// Package batch parses many documents with bounded concurrency.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"adekit/internal/domain"
	"adekit/internal/logger"
	"adekit/internal/port"
)

// ErrSkipped marks items that were never dispatched because the batch stopped early.
var ErrSkipped = errors.New("skipped: batch stopped before this item ran")

// Item is one document to process.
type Item struct {
	// Name labels the item in results and logs; defaults to the file name or URL.
	Name  string
	Input port.ParseInput
	// Schema, when set, runs Extract on the parsed markdown.
	Schema       json.RawMessage
	ExtractModel string
}

// Result is the outcome for the item at Index.
type Result struct {
	Index      int
	Name       string
	Parse      *domain.ParseResult
	Extraction *domain.ExtractionResult
	Err        error
	Duration   time.Duration
}

// Options controls a batch run.
type Options struct {
	// Concurrency caps in-flight items (default 4).
	Concurrency int
	// ContinueOnError keeps dispatching after a failed item.
	ContinueOnError bool
	// OnResult is called once per finished or skipped item. Calls are serialized.
	OnResult func(Result)
}

// Run processes items and returns one Result per item in input order.
func Run(ctx context.Context, processor port.DocumentProcessor, items []Item, opts Options) []Result {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	log := logger.FromContext(ctx)
	results := make([]Result, len(items))

	var mu sync.Mutex
	report := func(r Result) {
		results[r.Index] = r
		if opts.OnResult != nil {
			mu.Lock()
			opts.OnResult(r)
			mu.Unlock()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(concurrency)

	dispatched := 0
	for i := range items {
		if gctx.Err() != nil {
			break
		}
		idx := i
		item := items[i]
		dispatched++
		g.Go(func() error {
			if gctx.Err() != nil {
				report(Result{Index: idx, Name: itemName(item), Err: ErrSkipped})
				return nil
			}
			r := processOne(gctx, processor, idx, item)
			report(r)
			if r.Err != nil {
				log.Warn("batch item failed", zap.String("item", r.Name), zap.Error(r.Err))
				if !opts.ContinueOnError {
					return r.Err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := dispatched; i < len(items); i++ {
		report(Result{Index: i, Name: itemName(items[i]), Err: ErrSkipped})
	}
	return results
}

func processOne(ctx context.Context, processor port.DocumentProcessor, idx int, item Item) Result {
	start := time.Now()
	r := Result{Index: idx, Name: itemName(item)}

	parsed, err := processor.Parse(ctx, item.Input)
	if err != nil {
		r.Err = fmt.Errorf("parse %s: %w", r.Name, err)
		r.Duration = time.Since(start)
		return r
	}
	r.Parse = parsed

	if len(item.Schema) > 0 {
		ext, err := processor.Extract(ctx, port.ExtractInput{
			Markdown: parsed.Markdown,
			Schema:   item.Schema,
			Model:    item.ExtractModel,
		})
		r.Extraction = ext
		if err != nil {
			r.Err = fmt.Errorf("extract %s: %w", r.Name, err)
		}
	}
	r.Duration = time.Since(start)
	return r
}

func itemName(item Item) string {
	switch {
	case item.Name != "":
		return item.Name
	case item.Input.FileName != "":
		return item.Input.FileName
	case item.Input.DocumentPath != "":
		return item.Input.DocumentPath
	default:
		return item.Input.DocumentURL
	}
}

// Summary aggregates a batch's results.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Pages     int
	Credits   float64
}

// Summarize counts outcomes and totals pages and credits over results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case errors.Is(r.Err, ErrSkipped):
			s.Skipped++
		case r.Err != nil:
			s.Failed++
		default:
			s.Succeeded++
		}
		if r.Parse != nil {
			s.Pages += r.Parse.Metadata.PageCount
			s.Credits += r.Parse.Metadata.CreditUsage
		}
		if r.Extraction != nil {
			s.Credits += r.Extraction.Metadata.CreditUsage
		}
	}
	return s
}
