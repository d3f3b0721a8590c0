// Wsctl is a small command-line client and echo server for manual
// WebSocket testing; its echo server can also be tested by the Autobahn
// fuzzing client.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/ws/internal/logger"
	"github.com/tzrikka/xdg"
)

const (
	ConfigDirName  = "wsctl"
	ConfigFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "wsctl",
		Usage:   "WebSocket client/server demo and test harness",
		Version: bi.Main.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "pretty-log",
				Usage: "human-readable console logging, instead of JSON",
			},
		},
		Before: func(_ context.Context, cmd *cli.Command) (context.Context, error) {
			initLog(cmd.Bool("pretty-log"))
			return nil, nil //nolint:nilnil
		},
		Commands: []*cli.Command{
			dialCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// configFile returns the path to wsctl's configuration file. It also
// creates an empty file if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

// initLog initializes the default logger used by wsctl's subcommands.
func initLog(pretty bool) {
	var handler slog.Handler
	if pretty {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	slog.SetDefault(slog.New(handler))
}
