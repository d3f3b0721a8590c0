package websocket

import (
	"testing"
)

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		name string
		s    StatusCode
		want string
	}{
		{name: "normal_closure", s: StatusNormalClosure, want: "normal closure"},
		{name: "going_away", s: StatusGoingAway, want: "going away"},
		{name: "abnormal_closure", s: StatusAbnormalClosure, want: "abnormal closure"},
		{name: "message_too_big", s: StatusMessageTooBig, want: "message too big"},
		{name: "unrecognized", s: StatusCode(4999), want: "4999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("StatusCode.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnParseClosePayload(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		wantStatus StatusCode
		wantReason string
	}{
		{
			name:       "empty",
			payload:    nil,
			wantStatus: StatusNormalClosure,
		},
		{
			name:       "single_byte",
			payload:    []byte{0x03},
			wantStatus: StatusProtocolError,
		},
		{
			name:       "status_only",
			payload:    []byte{0x03, 0xe8}, // 1000
			wantStatus: StatusNormalClosure,
		},
		{
			name:       "status_and_reason",
			payload:    append([]byte{0x03, 0xe9}, []byte("bye")...), // 1001
			wantStatus: StatusGoingAway,
			wantReason: "bye",
		},
		{
			name:       "invalid_utf8_reason",
			payload:    append([]byte{0x03, 0xe8}, []byte{0xff, 0xfe}...),
			wantStatus: StatusInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Conn{}
			gotStatus, gotReason := c.parseClosePayload(tt.payload)
			if gotStatus != tt.wantStatus {
				t.Errorf("parseClosePayload() status = %v, want %v", gotStatus, tt.wantStatus)
			}
			if gotReason != tt.wantReason {
				t.Errorf("parseClosePayload() reason = %q, want %q", gotReason, tt.wantReason)
			}
		})
	}
}

func TestCheckClosePayload(t *testing.T) {
	tests := []struct {
		name       string
		status     StatusCode
		reason     string
		wantStatus StatusCode
	}{
		{
			name:       "valid",
			status:     StatusNormalClosure,
			wantStatus: StatusNormalClosure,
		},
		{
			name:       "reserved_1004",
			status:     1004,
			wantStatus: StatusProtocolError,
		},
		{
			name:       "not_received_rejected",
			status:     StatusNotReceived,
			wantStatus: StatusProtocolError,
		},
		{
			name:       "abnormal_closure_rejected",
			status:     StatusAbnormalClosure,
			wantStatus: StatusProtocolError,
		},
		{
			name:       "above_range_below_3000",
			status:     2999,
			wantStatus: StatusProtocolError,
		},
		{
			name:       "library_reserved_range_allowed",
			status:     3000,
			wantStatus: 3000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStatus, _ := checkClosePayload(tt.status, tt.reason)
			if gotStatus != tt.wantStatus {
				t.Errorf("checkClosePayload() status = %v, want %v", gotStatus, tt.wantStatus)
			}
		})
	}

	t.Run("long_reason_truncated", func(t *testing.T) {
		reason := make([]byte, maxCloseReason+10)
		for i := range reason {
			reason[i] = 'a'
		}
		_, gotReason := checkClosePayload(StatusNormalClosure, string(reason))
		if len(gotReason) != maxCloseReason {
			t.Errorf("checkClosePayload() reason length = %d, want %d", len(gotReason), maxCloseReason)
		}
	})
}
