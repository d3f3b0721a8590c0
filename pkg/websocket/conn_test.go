package websocket

import (
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
)

func TestRoleString(t *testing.T) {
	if got := roleClient.String(); got != "client" {
		t.Errorf("roleClient.String() = %q, want %q", got, "client")
	}
	if got := roleServer.String(); got != "server" {
		t.Errorf("roleServer.String() = %q, want %q", got, "server")
	}
}

func TestNewConn(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("generates_id_when_unset", func(t *testing.T) {
		c := newConn(roleClient, logger, defaultConfig())
		if c.ID() == "" {
			t.Error("newConn() left ID empty")
		}
	})

	t.Run("honors_configured_id", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.id = "fixed-id"
		c := newConn(roleServer, logger, cfg)
		if c.ID() != "fixed-id" {
			t.Errorf("newConn().ID() = %q, want %q", c.ID(), "fixed-id")
		}
	})

	t.Run("defaults_mask_source", func(t *testing.T) {
		c := newConn(roleClient, logger, defaultConfig())
		if c.maskSrc == nil {
			t.Error("newConn() left maskSrc nil")
		}
	})

	t.Run("honors_configured_mask_source", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.maskGen = strings.NewReader("1234123412341234")
		c := newConn(roleClient, logger, cfg)
		if c.maskSrc != cfg.maskGen {
			t.Error("newConn() did not use the configured maskGen")
		}
	})
}

func TestConnStartAndMessageRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := defaultConfig()
	cfg.maskGen = strings.NewReader("abcdabcdabcdabcd")

	c := newConn(roleClient, logger, cfg)
	c.start(client)

	go func() {
		buf := make([]byte, 64)
		if _, err := server.Read(buf); err != nil {
			return
		}
		// Echo a minimal unmasked close frame back, to let the reader task exit cleanly.
		_, _ = server.Write([]byte{0x88, 0x02, 0x03, 0xe8})
		// Drain the client's own close response so its write doesn't block.
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	<-c.SendTextMessage([]byte("hi"))

	_, ok := <-c.IncomingMessages()
	if ok {
		t.Error("IncomingMessages() yielded a data message, want only closure")
	}

	ce := c.CloseErr()
	if ce == nil {
		t.Fatal("CloseErr() = nil, want a recorded closure")
	}
	if ce.Code != StatusNormalClosure {
		t.Errorf("CloseErr().Code = %v, want %v", ce.Code, StatusNormalClosure)
	}
}
