package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raptchat/rapt/internal/client"
	"github.com/raptchat/rapt/internal/session"
)

var (
	sessionFlag string
	jsonOutput  bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "raptctl",
	Short:         "Control a running raptd session",
	Long:          "Command-line client for raptd: log in, sync contacts and rooms, open rooms and send messages.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// connect dials the daemon of the resolved session.
func connect() (*client.Client, error) {
	name, err := session.Resolve(sessionFlag, "")
	if err != nil {
		return nil, err
	}
	c, err := client.New(session.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, nil
}

// call runs one control method with the request timeout and prints the
// response as JSON when --json is set. Otherwise render formats it.
func call(method string, args map[string]any, render func(map[string]any)) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	resp, err := c.Call(ctx, method, args)
	if err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(resp)
		return nil
	}
	render(resp)
	if msg, _ := resp["error"].(string); msg != "" {
		fmt.Fprintf(os.Stderr, "warning: served from cache: %s\n", msg)
	}
	return nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func integer(m map[string]any, key string) int64 {
	f, _ := m[key].(float64)
	return int64(f)
}

func list(m map[string]any, key string) []map[string]any {
	raw, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if item, ok := v.(map[string]any); ok {
			out = append(out, item)
		}
	}
	return out
}

func millis(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}
