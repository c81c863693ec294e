package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skolmuirgheasa/resquared-automation/mcp"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

func newRunCmd() *cobra.Command {
	var req models.CampaignRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one campaign and print the step log as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			run, runErr := a.runner.Run(ctx, req)
			if run != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Campaign goal")
	cmd.Flags().StringVar(&req.TargetURL, "url", "", "Target application URL")
	cmd.Flags().StringVar(&req.Username, "username", "", "Login username")
	cmd.Flags().StringVar(&req.Password, "password", "", "Login password (or RESQUARED_PASSWORD)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if req.Password == "" {
			req.Password = os.Getenv("RESQUARED_PASSWORD")
		}
	}
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var maxDepth int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "snapshot <file.html>",
		Short: "Print the interactive-element snapshot of a saved HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			body, err := snapshot.FromHTML(string(data))
			if err != nil {
				return err
			}

			start := time.Now()
			snap := snapshot.NewBuilder(&snapshot.HandleAllocator{}).Build(body, snapshot.Options{
				MaxDepth:       maxDepth,
				CollectMetrics: true,
			})

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			fmt.Fprint(cmd.OutOrStdout(), snapshot.SerializeToSimpleText(snap))
			fmt.Fprintf(cmd.ErrOrStderr(), "%d interactive elements in %v\n", snap.HighlightCount(), time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", 20, "Maximum DOM depth to visit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full snapshot as JSON")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the campaign tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			return mcp.NewMCPServer(a.runner, a.db, Version, cfg.Snapshot.MaxDepth).ServeStdio()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Build Time: %s\n", BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "Go Version: %s\n", GoVersion)
		},
	}
}
