package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newUpgradeRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Sec-WebSocket-Version", "13")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return r
}

func TestCheckUpgradeRequest(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(r *http.Request)
		wantErr bool
	}{
		{name: "valid"},
		{
			name:    "wrong_method",
			modify:  func(r *http.Request) { r.Method = http.MethodPost },
			wantErr: true,
		},
		{
			name:    "missing_connection",
			modify:  func(r *http.Request) { r.Header.Del("Connection") },
			wantErr: true,
		},
		{
			name:    "missing_upgrade",
			modify:  func(r *http.Request) { r.Header.Del("Upgrade") },
			wantErr: true,
		},
		{
			name:    "wrong_version",
			modify:  func(r *http.Request) { r.Header.Set("Sec-WebSocket-Version", "8") },
			wantErr: true,
		},
		{
			name:    "missing_host",
			modify:  func(r *http.Request) { r.Host = "" },
			wantErr: true,
		},
		{
			name:    "old_protocol_version",
			modify:  func(r *http.Request) { r.ProtoMajor, r.ProtoMinor = 1, 0 },
			wantErr: true,
		},
		{
			name:    "missing_key",
			modify:  func(r *http.Request) { r.Header.Del("Sec-WebSocket-Key") },
			wantErr: true,
		},
		{
			name:    "key_not_base64",
			modify:  func(r *http.Request) { r.Header.Set("Sec-WebSocket-Key", "not base64!!") },
			wantErr: true,
		},
		{
			name:    "key_wrong_length",
			modify:  func(r *http.Request) { r.Header.Set("Sec-WebSocket-Key", "dG9vc2hvcnQ=") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newUpgradeRequest()
			if tt.modify != nil {
				tt.modify(r)
			}
			if err := checkUpgradeRequest(r); (err != nil) != tt.wantErr {
				t.Errorf("checkUpgradeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckUpgradeRequestVersionMismatch(t *testing.T) {
	r := newUpgradeRequest()
	r.Header.Set("Sec-WebSocket-Version", "8")

	err := checkUpgradeRequest(r)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("checkUpgradeRequest() error = %v, want *HandshakeError", err)
	}
	if !he.VersionMismatch {
		t.Error("HandshakeError.VersionMismatch = false, want true for a version-mismatch failure")
	}
}

func TestCheckSameOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{name: "no_origin", want: true},
		{name: "matching_http", origin: "http://example.com", host: "example.com", want: true},
		{name: "matching_https", origin: "https://example.com", host: "example.com", want: true},
		{name: "mismatched_host", origin: "http://evil.com", host: "example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkSameOrigin(r); got != tt.want {
				t.Errorf("checkSameOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpgrade(t *testing.T) {
	u := NewUpgrader()

	var upgradeErr error
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := u.Upgrade(w, r)
		upgradeErr = err
		if err == nil {
			conn.Close(StatusNormalClosure)
		}
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil) //nolint:noctx
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if upgradeErr != nil {
		t.Fatalf("Upgrader.Upgrade() error = %v", upgradeErr)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("response status = %d, want %d", resp.StatusCode, http.StatusSwitchingProtocols)
	}
	want := expectedServerAcceptValue("dGhlIHNhbXBsZSBub25jZQ==")
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != want {
		t.Errorf("Sec-WebSocket-Accept = %q, want %q", got, want)
	}
}

func TestUpgradeVersionMismatchReturns426(t *testing.T) {
	u := NewUpgrader()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = u.Upgrade(w, r)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil) //nolint:noctx
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "8")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("response status = %d, want %d", resp.StatusCode, http.StatusUpgradeRequired)
	}
}
