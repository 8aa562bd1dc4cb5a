package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var watchPrefix string

func init() {
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "only show events whose kind starts with this prefix")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return c.Watch(ctx, watchPrefix, func(evt map[string]any) error {
			if jsonOutput {
				outputJSON(evt)
				return nil
			}
			at := time.UnixMilli(integer(evt, "occurred_at_ms")).Format("15:04:05.000")
			fmt.Printf("%s %-28s %v\n", at, str(evt, "kind"), evt["payload"])
			return nil
		})
	},
}
