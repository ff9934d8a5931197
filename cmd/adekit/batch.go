package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adekit/internal/batch"
	"adekit/internal/cache"
	"adekit/internal/domain"
)

func (a *app) batchCmd() *cobra.Command {
	var (
		concurrency          int
		schemaPath, outDir   string
		model, split, format string
		continueOnError      bool
	)
	cmd := &cobra.Command{
		Use:   "batch <glob>...",
		Short: "Parse many documents, optionally extracting fields from each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files match %s: %w", strings.Join(args, " "), domain.ErrInvalidRequest)
			}
			schema, err := readSchema(schemaPath)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			processor := cache.NewCachedProcessor(client, a.cfg.Cache.Size, a.cfg.Cache.TTL)

			items := make([]batch.Item, 0, len(paths))
			for _, p := range paths {
				items = append(items, batch.Item{
					Input:        parseInput(p, model, split),
					Schema:       schema,
					ExtractModel: a.cfg.Client.ExtractModel,
				})
			}

			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Batch.Concurrency
			}
			if !cmd.Flags().Changed("continue-on-error") {
				continueOnError = a.cfg.Batch.ContinueOnError
			}

			var writeErrs []error
			results := batch.Run(cmd.Context(), processor, items, batch.Options{
				Concurrency:     concurrency,
				ContinueOnError: continueOnError,
				OnResult: func(r batch.Result) {
					if r.Err != nil {
						a.log.Warn("document failed", zap.String("name", r.Name), zap.Error(r.Err))
						return
					}
					a.log.Info("document done", zap.String("name", r.Name), zap.Duration("took", r.Duration))
					if outDir != "" {
						if err := writeBatchResult(outDir, format, r); err != nil {
							writeErrs = append(writeErrs, err)
						}
					}
				},
			})

			sum := batch.Summarize(results)
			fmt.Fprintf(cmd.OutOrStdout(), "succeeded=%d failed=%d skipped=%d pages=%d credits=%.2f\n",
				sum.Succeeded, sum.Failed, sum.Skipped, sum.Pages, sum.Credits)
			if len(writeErrs) > 0 {
				return errors.Join(writeErrs...)
			}
			if sum.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed", sum.Failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "documents processed in parallel (defaults to batch.concurrency)")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON schema file; when set, fields are extracted from every document")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for per-document results")
	cmd.Flags().StringVar(&model, "model", "", "parse model (defaults to client.parse_model)")
	cmd.Flags().StringVar(&split, "split", "", `split mode ("page" or empty)`)
	cmd.Flags().StringVar(&format, "format", formatJSON, "per-document output format: json, md, csv or xlsx")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "keep going after a failed document (defaults to batch.continue_on_error)")
	return cmd
}

// expandGlobs resolves patterns to a sorted, de-duplicated file list. URLs pass through.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeBatchResult(outDir, format string, r batch.Result) error {
	base := strings.TrimSuffix(filepath.Base(r.Name), filepath.Ext(r.Name))
	if base == "" || base == "." || base == "/" {
		base = fmt.Sprintf("document_%d", r.Index)
	}
	ext := format
	if ext == "" {
		ext = formatJSON
	}
	name := filepath.Join(outDir, fmt.Sprintf("%03d_%s.%s", r.Index, base, ext))
	if err := writeOutput(name, nil, func(w io.Writer) error {
		return renderParse(w, format, r.Parse)
	}); err != nil {
		return err
	}
	if r.Extraction == nil {
		return nil
	}
	fields := filepath.Join(outDir, fmt.Sprintf("%03d_%s.fields.json", r.Index, base))
	return writeOutput(fields, nil, func(w io.Writer) error {
		return writeJSON(w, r.Extraction)
	})
}
