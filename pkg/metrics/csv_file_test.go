package metrics_test

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/tzrikka/ws/pkg/metrics"
)

func TestIncrementHandshakeCounter(t *testing.T) {
	t.Chdir(t.TempDir())
	now := time.Now().UTC()

	if err := os.Mkdir("metrics", 0o700); err != nil {
		t.Fatal(err)
	}

	want1 := 101
	got1 := metrics.IncrementHandshakeCounter(slog.Default(), now, "server", want1)
	if got1 != want1 {
		t.Errorf("IncrementHandshakeCounter() = %v, want %v", got1, want1)
	}

	f, err := os.ReadFile(fmt.Sprintf(metrics.DefaultHandshakesFile, now.Format(time.DateOnly)))
	if err != nil {
		t.Fatal(err)
	}

	got2 := string(f)
	want2 := now.Format(time.RFC3339) + ",server,101\n"
	if got2 != want2 {
		t.Errorf("file content = %q, want %q", got2, want2)
	}
}

func TestIncrementClosureCounter(t *testing.T) {
	t.Chdir(t.TempDir())
	now := time.Now().UTC()

	if err := os.Mkdir("metrics", 0o700); err != nil {
		t.Fatal(err)
	}

	metrics.IncrementClosureCounter(slog.Default(), now, 1000, "bye")
	metrics.IncrementClosureCounter(slog.Default(), now, 1002, "")

	f, err := os.ReadFile(fmt.Sprintf(metrics.DefaultClosuresFile, now.Format(time.DateOnly)))
	if err != nil {
		t.Fatal(err)
	}

	got := string(f)
	ts := now.Format(time.RFC3339)
	want := fmt.Sprintf("%s,1000,bye\n%s,1002,\n", ts, ts)
	if got != want {
		t.Errorf("file content = %q, want %q", got, want)
	}
}
