package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var insightsLimit int

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Manage AI sales insights",
	Long:  "Commands for generating, evaluating, and improving contractor sales insights.",
}

var insightsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate insights for contractors missing or with stale ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := initInsights(st)
		if err != nil {
			return err
		}

		n, err := svc.GenerateMissing(ctx, insightsLimit)
		if err != nil {
			return err
		}
		fmt.Printf("generated %d insight(s)\n", n)
		return nil
	},
}

var insightsEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score existing insights that have no quality score yet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := initInsights(st)
		if err != nil {
			return err
		}

		n, err := svc.EvaluateUnscored(ctx, insightsLimit)
		if err != nil {
			return err
		}
		fmt.Printf("evaluated %d insight(s)\n", n)
		return nil
	},
}

var insightsImproveCmd = &cobra.Command{
	Use:   "improve",
	Short: "Regenerate insights scoring below the quality threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := initInsights(st)
		if err != nil {
			return err
		}

		n, err := svc.ImproveBelowThreshold(ctx, insightsLimit)
		if err != nil {
			return err
		}
		fmt.Printf("%d insight(s) now at or above %.1f\n", n, svc.Threshold())
		return nil
	},
}

func init() {
	insightsCmd.PersistentFlags().IntVar(&insightsLimit, "limit", 100, "max contractors to process per batch")
	insightsCmd.AddCommand(insightsGenerateCmd)
	insightsCmd.AddCommand(insightsEvaluateCmd)
	insightsCmd.AddCommand(insightsImproveCmd)
	rootCmd.AddCommand(insightsCmd)
}
