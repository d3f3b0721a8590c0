package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/ws/internal/logger"
	"github.com/tzrikka/ws/pkg/websocket"
)

func serveCommand() *cli.Command {
	flags := append([]cli.Flag{addrFlag(configFile())}, sharedFlags(configFile())...)

	return &cli.Command{
		Name:   "serve",
		Usage:  "run a WebSocket echo server, for manual testing or Autobahn fuzzing",
		Flags:  flags,
		Action: runServe,
	}
}

func addrFlag(configFilePath altsrc.StringSourcer) cli.Flag {
	return &cli.StringFlag{
		Name:  "addr",
		Usage: "local address to listen on",
		Value: DefaultAddr,
		Sources: cli.NewValueSourceChain(
			cli.EnvVar("WSCTL_ADDR"),
			toml.TOML("websocket.addr", configFilePath),
		),
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	l := logger.FromContext(ctx)

	u := websocket.NewUpgrader(dialOptions(cmd)...)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := u.Upgrade(w, r)
		if err != nil {
			l.Warn("upgrade failed", slog.Any("error", err))
			return
		}
		go echoUntilClosed(logger.InContext(r.Context(), l), conn)
	})

	addr := cmd.String("addr")
	l.Info("listening for WebSocket connections", slog.String("addr", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// echoUntilClosed relays every incoming message back to the peer unchanged,
// the server-side half of the Autobahn fuzzing protocol's echo behavior.
func echoUntilClosed(ctx context.Context, conn *websocket.Conn) {
	l := logger.FromContext(ctx).With(slog.String("conn_id", conn.ID()))

	for msg := range conn.IncomingMessages() {
		var err error
		switch msg.Opcode {
		case websocket.OpcodeText:
			err = <-conn.SendTextMessage(msg.Data)
		case websocket.OpcodeBinary:
			err = <-conn.SendBinaryMessage(msg.Data)
		}
		if err != nil {
			l.Error("echo failed", slog.Any("error", err))
			conn.Close(websocket.StatusInternalError)
			return
		}
	}
}
