package main

import (
	"errors"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultAddr is the default listening address for the "serve" subcommand.
	DefaultAddr = "localhost:8080"
)

// sharedFlags are accepted by both the "dial" and "serve" subcommands,
// configuring the permessage-deflate extension and size limits that apply
// to a [websocket.Conn] regardless of its role.
func sharedFlags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "permessage-deflate",
			Usage: "negotiate the permessage-deflate extension (RFC 7692)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCTL_PERMESSAGE_DEFLATE"),
				toml.TOML("websocket.permessage_deflate", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "no-context-takeover",
			Usage: "request/require both sides to reset their compressor after every message",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCTL_NO_CONTEXT_TAKEOVER"),
				toml.TOML("websocket.no_context_takeover", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "max-frame-size",
			Usage: "reject incoming frames larger than this many bytes (0 = library default)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCTL_MAX_FRAME_SIZE"),
				toml.TOML("websocket.max_frame_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "max-message-size",
			Usage: "reject reassembled messages larger than this many bytes (0 = library default)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCTL_MAX_MESSAGE_SIZE"),
				toml.TOML("websocket.max_message_size", configFilePath),
			),
			Validator: validateNonNegative,
		},
	}
}

func validateNonNegative(n int) error {
	if n < 0 {
		return errors.New("must not be negative")
	}
	return nil
}
