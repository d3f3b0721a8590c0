package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tzrikka/ws/internal/logger"
	"github.com/tzrikka/ws/pkg/websocket"
)

func dialCommand() *cli.Command {
	return &cli.Command{
		Name:      "dial",
		Usage:     "connect to a WebSocket server and relay stdin/stdout",
		ArgsUsage: "<ws(s)://host:port/path>",
		Flags:     sharedFlags(configFile()),
		Action:    runDial,
	}
}

func runDial(ctx context.Context, cmd *cli.Command) error {
	url := cmd.Args().First()
	if url == "" {
		return cli.Exit("missing WebSocket URL argument", 1)
	}

	opts := dialOptions(cmd)

	conn, err := websocket.Dial(ctx, url, opts...)
	if err != nil {
		logger.FatalErrorContext(ctx, "failed to dial WebSocket server", err, slog.String("url", url))
	}

	l := logger.FromContext(ctx).With(slog.String("conn_id", conn.ID()))
	l.Info("connected", slog.String("url", url))

	go printIncomingMessages(l, conn)
	relayStdinToConn(l, conn)

	return nil
}

func dialOptions(cmd *cli.Command) []websocket.Option {
	var opts []websocket.Option

	if cmd.Bool("permessage-deflate") {
		opts = append(opts, websocket.WithPermessageDeflate(0))
	}
	if cmd.Bool("no-context-takeover") {
		opts = append(opts, websocket.WithClientNoContextTakeover(), websocket.WithServerNoContextTakeover())
	}
	if n := cmd.Int("max-frame-size"); n > 0 {
		opts = append(opts, websocket.WithMaxFrameSize(uint64(n))) //nolint:gosec // validated non-negative above
	}
	if n := cmd.Int("max-message-size"); n > 0 {
		opts = append(opts, websocket.WithMaxMessageSize(uint64(n))) //nolint:gosec // validated non-negative above
	}

	return opts
}

func printIncomingMessages(l *slog.Logger, conn *websocket.Conn) {
	for msg := range conn.IncomingMessages() {
		switch msg.Opcode {
		case websocket.OpcodeText:
			os.Stdout.WriteString(string(msg.Data) + "\n") //nolint:errcheck
		case websocket.OpcodeBinary:
			l.Info("received binary message", slog.Int("length", len(msg.Data)))
		}
	}
	l.Info("connection closed by peer")
}

func relayStdinToConn(l *slog.Logger, conn *websocket.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := <-conn.SendTextMessage(scanner.Bytes()); err != nil {
			l.Error("failed to send message", slog.Any("error", err))
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure)
}
