package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelgen/internal/task"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		kindFlag     string
		topicFlag    string
		scriptFile   string
		voiceFlag    string
		resolution   string
		durationFlag int
		languageFlag string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new generation task",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.ensureManager()
			if err != nil {
				return err
			}

			kind, ok := task.ParseKind(kindFlag)
			if !ok {
				return fmt.Errorf("unknown kind %q (expected video, audio-only, or subtitle-only)", kindFlag)
			}

			params := task.Params{
				Topic:           topicFlag,
				Voice:           voiceFlag,
				Resolution:      resolution,
				DurationSeconds: durationFlag,
				Language:        languageFlag,
			}
			if scriptFile != "" {
				raw, err := os.ReadFile(scriptFile)
				if err != nil {
					return fmt.Errorf("read script file: %w", err)
				}
				params.Script = string(raw)
			}

			created, err := mgr.CreateTask(cmd.Context(), kind, params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s (%s)\n", created.ID, created.Kind)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "kind", "k", string(task.KindVideo), "Task kind: video, audio-only, or subtitle-only")
	cmd.Flags().StringVarP(&topicFlag, "topic", "t", "", "Topic to generate a script for")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "Path to a prewritten narration script")
	cmd.Flags().StringVar(&voiceFlag, "voice", "", "Voice id (defaults to the configured default voice)")
	cmd.Flags().StringVar(&resolution, "resolution", "", "Output resolution, e.g. 1080x1920")
	cmd.Flags().IntVar(&durationFlag, "duration", 0, "Target duration in seconds (0 = follow the script)")
	cmd.Flags().StringVar(&languageFlag, "language", "", "Script language (default en)")

	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.ensureManager()
			if err != nil {
				return err
			}
			t, err := mgr.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task:     %s\n", t.ID)
			fmt.Fprintf(out, "Kind:     %s\n", t.Kind)
			fmt.Fprintf(out, "Status:   %s\n", t.Status)
			fmt.Fprintf(out, "Progress: %.0f%%\n", t.Progress)
			if t.Params.Topic != "" {
				fmt.Fprintf(out, "Topic:    %s\n", t.Params.Topic)
			}
			if t.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:    %s\n", t.ErrorMessage)
			}
			if t.Degradation != "" {
				fmt.Fprintf(out, "Degraded: %s\n", t.Degradation)
			}
			if len(t.StageOutputs) > 0 {
				fmt.Fprintln(out, "Artifacts:")
				for stageName, ref := range t.StageOutputs {
					fmt.Fprintf(out, "  %-10s %s\n", stageName, ref)
				}
			}
			fmt.Fprintf(out, "Created:  %s\n", t.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Updated:  %s\n", t.UpdatedAt.Local().Format(time.RFC3339))
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.ensureManager()
			if err != nil {
				return err
			}

			var statuses []task.Status
			if statusFilter != "" {
				for _, value := range strings.Split(statusFilter, ",") {
					status, ok := task.ParseStatus(strings.TrimSpace(value))
					if !ok {
						return fmt.Errorf("unknown status %q", value)
					}
					statuses = append(statuses, status)
				}
			}

			tasks, err := mgr.ListTasks(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
				return nil
			}

			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				topic := t.Params.Topic
				if topic == "" {
					topic = "(prewritten script)"
				}
				rows = append(rows, []string{
					t.ID,
					string(t.Kind),
					string(t.Status),
					strconv.Itoa(int(t.Progress)) + "%",
					topic,
					t.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Status", "Progress", "Topic", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Comma-separated status filter (pending,running,...)")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.ensureManager()
			if err != nil {
				return err
			}
			t, err := mgr.CancelTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t.Status == task.StatusCancelled {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancelled\n", t.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for task %s; it will stop at the next stage boundary\n", t.ID)
			}
			return nil
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its working directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.ensureManager()
			if err != nil {
				return err
			}
			if err := mgr.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s deleted\n", args[0])
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Queue a failed task for another run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.ensureManager()
			if err != nil {
				return err
			}
			t, err := mgr.RetryTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s back in the queue (%s)\n", t.ID, t.Status)
			return nil
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.ensureManager()
			if err != nil {
				return err
			}
			stats, err := mgr.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"pending", strconv.Itoa(stats.Pending)},
				{"running", strconv.Itoa(stats.Running)},
				{"partially_completed", strconv.Itoa(stats.Partial)},
				{"completed", strconv.Itoa(stats.Completed)},
				{"failed", strconv.Itoa(stats.Failed)},
				{"cancelled", strconv.Itoa(stats.Cancelled)},
				{"total", strconv.Itoa(stats.Total)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Count"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
