// Package metrics provides functions to record WebSocket connection
// lifecycle metrics. It is a very thin layer over local CSV files,
// intended for simple setups that don't run a full metrics backend.
package metrics

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tzrikka/xdg"
)

const (
	// DefaultHandshakesFile records opening handshakes, one row per call to
	// [IncrementHandshakeCounter]: timestamp, role (client/server), status code.
	DefaultHandshakesFile = "metrics/websocket_handshakes_%s.csv"

	// DefaultClosuresFile records the outcome of every connection closure,
	// one row per connection: timestamp, close status code, reason.
	DefaultClosuresFile = "metrics/websocket_closures_%s.csv"

	fileFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	filePerms = xdg.NewFilePermissions
)

var (
	muHandshakes sync.Mutex
	muClosures   sync.Mutex
)

// IncrementHandshakeCounter records the outcome of an opening handshake.
// It returns the given status code unchanged, so callers can wrap a
// handshake-response write without an extra branch.
func IncrementHandshakeCounter(l *slog.Logger, t time.Time, role string, statusCode int) int {
	muHandshakes.Lock()
	defer muHandshakes.Unlock()

	record := []string{t.Format(time.RFC3339), role, strconv.Itoa(statusCode)}
	if err := appendToCSVFile(DefaultHandshakesFile, t, record); err != nil {
		l.Error("metrics error: failed to increment handshake counter", slog.Any("error", err),
			slog.String("role", role), slog.Int("status", statusCode))
	}

	return statusCode
}

// IncrementClosureCounter records the RFC 6455 status code and reason that
// terminated a connection, whether initiated locally or by the peer.
func IncrementClosureCounter(l *slog.Logger, t time.Time, code uint16, reason string) {
	muClosures.Lock()
	defer muClosures.Unlock()

	record := []string{t.Format(time.RFC3339), strconv.Itoa(int(code)), reason}
	if err := appendToCSVFile(DefaultClosuresFile, t, record); err != nil {
		l.Error("metrics error: failed to increment closure counter", slog.Any("error", err),
			slog.Int("code", int(code)))
	}
}

func appendToCSVFile(filename string, t time.Time, record []string) error {
	filename = fmt.Sprintf(filename, t.Format(time.DateOnly))
	f, err := os.OpenFile(filename, fileFlags, filePerms) //gosec:disable G304 // Hardcoded path.
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return nil
}
