package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/domain"
	"adekit/internal/validate"
)

func (a *app) parseCmd() *cobra.Command {
	var (
		model, split, out, format string
		async, check              bool
	)
	cmd := &cobra.Command{
		Use:   "parse <path|url>",
		Short: "Parse a document into markdown, chunks and splits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			if format == "" {
				format = formatFromPath(out, formatJSON)
			}
			if format == formatXLSX && out == "" {
				return fmt.Errorf("--out is required for xlsx: %w", domain.ErrInvalidRequest)
			}

			input := parseInput(args[0], model, split)
			var res *domain.ParseResult
			if async {
				res, err = client.ParseAsync(ctx, input, ade.PollOptions{
					OnProgress: func(job *domain.RemoteJob) {
						a.log.Info("parse job", zap.String("job_id", job.JobID),
							zap.String("status", string(job.Status)), zap.Float64("progress", job.Progress))
					},
				})
			} else {
				res, err = client.Parse(ctx, input)
			}
			if err != nil {
				return err
			}

			if check {
				for _, v := range validate.CheckParseResult(res, validate.Bounds{}) {
					a.log.Warn("parse result check", zap.String("violation", v.String()))
				}
			}
			a.log.Info("parsed",
				zap.Int("pages", res.Metadata.PageCount),
				zap.Int("chunks", len(res.Chunks)),
				zap.Float64("credits", res.Metadata.CreditUsage))

			return writeOutput(out, cmd.OutOrStdout(), func(w io.Writer) error {
				return renderParse(w, format, res)
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "parse model (defaults to client.parse_model)")
	cmd.Flags().StringVar(&split, "split", "", `split mode ("page" or empty)`)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringVar(&format, "format", "", "output format: json, md, csv or xlsx (inferred from --out)")
	cmd.Flags().BoolVar(&async, "async", false, "use the asynchronous job API")
	cmd.Flags().BoolVar(&check, "check", true, "log consistency warnings for the result")
	return cmd
}
