package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap/zapcore"

	"github.com/raptchat/rapt/internal/daemon"
	"github.com/raptchat/rapt/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.rapt/config.toml)")
	levelFlag := flag.String("log-level", "info", "log level: debug, info, warn, error")
	quietFlag := flag.Bool("quiet", false, "log to the session log file only")
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag, *configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	level, err := zapcore.ParseLevel(*levelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			ConfigPath:  *configFlag,
			LogLevel:    level,
			Quiet:       *quietFlag,
		}),
		fx.NopLogger,
	)

	app.Run()
}
