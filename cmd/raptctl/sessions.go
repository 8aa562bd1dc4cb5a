package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raptchat/rapt/internal/lock"
	"github.com/raptchat/rapt/internal/session"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

// sessionsCmd reads the session directories directly, so it works with no
// daemon running.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions on this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := session.List()
		if err != nil {
			return err
		}
		rows := make([]map[string]any, 0, len(list))
		for _, s := range list {
			row := map[string]any{"name": s.Name, "path": s.Dir, "has_db": s.HasDB, "running": false}
			if h, err := lock.Inspect(s.Dir); err == nil && h != nil && h.Alive() {
				row["running"] = true
				row["pid"] = h.PID
			}
			rows = append(rows, row)
		}
		if jsonOutput {
			outputJSON(rows)
			return nil
		}
		if len(rows) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, r := range rows {
			state := "stopped"
			if r["running"] == true {
				state = fmt.Sprintf("running, pid %d", r["pid"])
			}
			fmt.Printf("%-20s %s (%s)\n", r["name"], r["path"], state)
		}
		return nil
	},
}
