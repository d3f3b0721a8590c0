package websocket

import (
	"net/http"
	"reflect"
	"testing"
)

func TestParseExtensions(t *testing.T) {
	h := http.Header{}
	h.Add("Sec-WebSocket-Extensions", "permessage-deflate; client_no_context_takeover, foo;bar=baz")

	got := parseExtensions(h)
	want := []extensionOffer{
		{name: "permessage-deflate", params: map[string]string{"client_no_context_takeover": ""}},
		{name: "foo", params: map[string]string{"bar": "baz"}},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseExtensions() = %+v, want %+v", got, want)
	}
}

func TestParseExtensionsEmpty(t *testing.T) {
	h := http.Header{}
	if got := parseExtensions(h); got != nil {
		t.Errorf("parseExtensions() = %+v, want nil", got)
	}
}

func TestParseWindowBits(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		allowEmpty bool
		want       int
		wantOK     bool
	}{
		{name: "empty_allowed", value: "", allowEmpty: true, want: defaultWindowBits, wantOK: true},
		{name: "empty_disallowed", value: "", allowEmpty: false, wantOK: false},
		{name: "valid", value: "10", wantOK: true, want: 10},
		{name: "too_small", value: "7", wantOK: false},
		{name: "too_large", value: "16", wantOK: false},
		{name: "not_a_number", value: "abc", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseWindowBits(tt.value, tt.allowEmpty)
			if ok != tt.wantOK {
				t.Fatalf("parseWindowBits() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseWindowBits() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNegotiateServerSide(t *testing.T) {
	cfg := defaultConfig()

	t.Run("plain_offer", func(t *testing.T) {
		offer := extensionOffer{name: permessageDeflateToken, params: map[string]string{}}
		p, ok := negotiateServerSide(offer, cfg)
		if !ok {
			t.Fatal("negotiateServerSide() ok = false, want true")
		}
		if p.clientMaxWindowBits != defaultWindowBits || p.serverMaxWindowBits != defaultWindowBits {
			t.Errorf("negotiateServerSide() = %+v, want default window bits", p)
		}
	})

	t.Run("unknown_parameter_declines", func(t *testing.T) {
		offer := extensionOffer{name: permessageDeflateToken, params: map[string]string{"unknown": "1"}}
		_, ok := negotiateServerSide(offer, cfg)
		if ok {
			t.Error("negotiateServerSide() ok = true, want false for unknown parameter")
		}
	})

	t.Run("server_config_forces_no_context_takeover", func(t *testing.T) {
		c := defaultConfig()
		c.serverNoContextTakeover = true
		offer := extensionOffer{name: permessageDeflateToken, params: map[string]string{}}
		p, ok := negotiateServerSide(offer, c)
		if !ok {
			t.Fatal("negotiateServerSide() ok = false, want true")
		}
		if !p.serverNoContextTakeover {
			t.Error("negotiateServerSide() did not honor configured serverNoContextTakeover")
		}
	})
}

func TestResponseExtensionHeader(t *testing.T) {
	p := deflateParams{
		clientNoContextTakeover: true,
		clientMaxWindowBits:     defaultWindowBits,
		serverMaxWindowBits:     defaultWindowBits,
	}
	got := responseExtensionHeader(p)
	want := "permessage-deflate; client_no_context_takeover"
	if got != want {
		t.Errorf("responseExtensionHeader() = %q, want %q", got, want)
	}
}

func TestOfferExtensionHeader(t *testing.T) {
	cfg := defaultConfig()
	cfg.clientMaxWindowBits = 10
	cfg.serverMaxWindowBits = 9

	got := offerExtensionHeader(cfg)
	want := "permessage-deflate; client_max_window_bits=10; server_max_window_bits=9"
	if got != want {
		t.Errorf("offerExtensionHeader() = %q, want %q", got, want)
	}
}

func TestParseClientSideResponse(t *testing.T) {
	cfg := defaultConfig()

	t.Run("accepted_as_offered", func(t *testing.T) {
		offer := extensionOffer{name: permessageDeflateToken, params: map[string]string{}}
		p, err := parseClientSideResponse(offer, cfg)
		if err != nil {
			t.Fatalf("parseClientSideResponse() error = %v", err)
		}
		if p.clientMaxWindowBits != defaultWindowBits {
			t.Errorf("parseClientSideResponse() clientMaxWindowBits = %d, want %d", p.clientMaxWindowBits, defaultWindowBits)
		}
	})

	t.Run("server_widens_window_rejected", func(t *testing.T) {
		c := defaultConfig()
		c.clientMaxWindowBits = 10
		offer := extensionOffer{name: permessageDeflateToken, params: map[string]string{"client_max_window_bits": "12"}}
		if _, err := parseClientSideResponse(offer, c); err == nil {
			t.Error("parseClientSideResponse() error = nil, want non-nil")
		}
	})

	t.Run("unsupported_parameter_rejected", func(t *testing.T) {
		offer := extensionOffer{name: permessageDeflateToken, params: map[string]string{"made_up": "1"}}
		if _, err := parseClientSideResponse(offer, cfg); err == nil {
			t.Error("parseClientSideResponse() error = nil, want non-nil")
		}
	})
}
