package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := svc.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, j := range list {
				rows = append(rows, []string{
					j.ID,
					j.Status,
					dash(j.Stage),
					fmt.Sprintf("%d%%", j.Progress),
					dash(j.IndexerState),
					j.UpdatedAt.Local().Format(time.DateTime),
					dash(truncate(j.Error, 40)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Stage", "Progress", "Indexer", "Updated", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list")

	cmd.AddCommand(newJobsSubmitCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	return cmd
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "submit <video-url>",
		Short: "Queue a video for the background runner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()

			job, err := svc.Submit(cmd.Context(), args[0], jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job identifier (defaults to a generated UUID)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()

			job, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			artifacts, err := svc.Repository().ListArtifacts(cmd.Context(), job.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, [][]string{
				{"ID", job.ID},
				{"Video URL", job.VideoURL},
				{"Status", job.Status},
				{"Stage", dash(job.Stage)},
				{"Progress", fmt.Sprintf("%d%%", job.Progress)},
				{"Indexer video", dash(job.IndexerVideoID)},
				{"Indexer state", dash(job.IndexerState)},
				{"Error", dash(job.Error)},
				{"Created", job.CreatedAt.Local().Format(time.DateTime)},
				{"Updated", job.UpdatedAt.Local().Format(time.DateTime)},
			}, nil))
			if len(artifacts) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(artifacts))
			for _, a := range artifacts {
				rows = append(rows, []string{a.Kind, a.Container, a.Name})
			}
			fmt.Fprintln(out, renderTable([]string{"Artifact", "Container", "Name"}, rows, nil))
			return nil
		},
	}
}
