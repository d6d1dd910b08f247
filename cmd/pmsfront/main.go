package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/front"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/logging"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/tasksync"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pmsfront",
		Short:         "Dubbing project board: task and subtask pages over the PMS REST services",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newReconcileCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the authenticated board API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return front.InitAndServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "configs/front.env", "path to the env configuration file")
	return cmd
}

// reconcile runs one subtask refresh against the live services and prints
// the resolved rows, the same way a mounted page would see them.
func newReconcileCmd() *cobra.Command {
	var (
		taskID  int64
		baseURL string
		token   string
		timeout time.Duration
		level   string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fetch a task's subtasks, resolve assignees and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID <= 0 {
				return fmt.Errorf("--task must be a positive id")
			}
			logging.Init(logging.Options{SystemName: "pms-reconcile", Level: level})

			ds := tasksync.NewDownstream(tasksync.DownstreamOptions{
				BaseURL: baseURL,
				Timeout: timeout,
				Logger:  logging.Logger,
			})
			v := tasksync.Mount(ds, token, tasksync.ViewOptions{Delays: tasksync.DefaultDelays()})
			defer v.Close()

			rows, err := v.Syncer.RefreshSubtasks(cmd.Context(), taskID)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(map[string]any{
				"task":          taskID,
				"subtasks":      rows,
				"notifications": v.Inbox.Drain(),
			}); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	cmd.Flags().StringVar(&baseURL, "base-url", envOr("API_BASE_URL", "http://localhost:5000/api"), "REST services base url")
	cmd.Flags().StringVar(&token, "token", os.Getenv("PMS_TOKEN"), "bearer token")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per request timeout")
	cmd.Flags().StringVar(&level, "log-level", "warn", "log level")
	return cmd
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
