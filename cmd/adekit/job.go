package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/domain"
)

func (a *app) jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage asynchronous parse jobs",
	}
	cmd.AddCommand(a.jobSubmitCmd(), a.jobStatusCmd(), a.jobWaitCmd(), a.jobListCmd())
	return cmd
}

func (a *app) jobSubmitCmd() *cobra.Command {
	var model, split string
	cmd := &cobra.Command{
		Use:   "submit <path|url>",
		Short: "Submit a document for asynchronous parsing and print the job id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			job, err := client.CreateParseJob(cmd.Context(), parseInput(args[0], model, split))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), job.JobID)
			return err
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "parse model (defaults to client.parse_model)")
	cmd.Flags().StringVar(&split, "split", "", `split mode ("page" or empty)`)
	return cmd
}

func (a *app) jobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a parse job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			job, err := client.GetParseJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), jobSummary(job))
		},
	}
}

func (a *app) jobWaitCmd() *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Wait for a parse job to finish and write its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			job, err := client.Poll(cmd.Context(), args[0], ade.PollOptions{
				Interval:    a.cfg.Client.PollInterval(),
				MaxInterval: a.cfg.Client.PollMax(),
				Timeout:     a.cfg.Client.JobTimeout(),
				OnProgress: func(j *domain.RemoteJob) {
					a.log.Info("parse job", zap.String("job_id", j.JobID),
						zap.String("status", string(j.Status)), zap.Float64("progress", j.Progress))
				},
			})
			if err != nil {
				return err
			}
			if job.Result == nil {
				return fmt.Errorf("job %s completed without a result", job.JobID)
			}
			if format == "" {
				format = formatFromPath(out, formatJSON)
			}
			return writeOutput(out, cmd.OutOrStdout(), func(w io.Writer) error {
				return renderParse(w, format, job.Result)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringVar(&format, "format", "", "output format: json, md, csv or xlsx (inferred from --out)")
	return cmd
}

func (a *app) jobListCmd() *cobra.Command {
	var (
		page, pageSize int
		status         string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parse jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			list, err := client.ListParseJobs(cmd.Context(), ade.ListJobsOptions{
				Page:     page,
				PageSize: pageSize,
				Status:   domain.RemoteJobStatus(status),
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB ID\tSTATUS\tPROGRESS\tCREATED")
			for _, j := range list.Jobs {
				fmt.Fprintf(tw, "%s\t%s\t%.0f%%\t%s\n", j.JobID, j.Status, j.Progress*100, j.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			if list.HasMore {
				fmt.Fprintf(tw, "(more on page %d)\n", page+1)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number, starting at 0")
	cmd.Flags().IntVar(&pageSize, "page-size", 10, "jobs per page")
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, processing, completed, failed, cancelled)")
	return cmd
}

// jobSummary drops the inline result, which can be large.
func jobSummary(job *domain.RemoteJob) *domain.RemoteJob {
	s := *job
	s.Result = nil
	return &s
}
