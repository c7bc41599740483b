package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxnote/voxnote/pkg/logger"
)

func testSettings() SessionSettings {
	return SessionSettings{
		SampleRate:        24000,
		Model:             "gpt-4o-transcribe",
		Language:          "en",
		VADThreshold:      0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
	}
}

func TestTokenClientIssue(t *testing.T) {
	var gotAuth string
	var gotBody clientSecretRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(clientSecretResponse{
			Value:     "ek_test",
			ExpiresAt: time.Now().Add(time.Minute).Unix(),
		})
	}))
	defer srv.Close()

	tc := NewTokenClient("sk-test", srv.URL, testSettings(), time.Second, logger.Nop())

	cred, err := tc.Issue(context.Background())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if cred.Token != "ek_test" {
		t.Errorf("got token %q, want %q", cred.Token, "ek_test")
	}
	if cred.Expired() {
		t.Error("fresh credential reported as expired")
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("got Authorization %q, want %q", gotAuth, "Bearer sk-test")
	}
	if gotBody.Session.Type != "transcription" {
		t.Errorf("got session type %q, want %q", gotBody.Session.Type, "transcription")
	}
	input := gotBody.Session.Audio.Input
	if input.Format.Type != "audio/pcm" || input.Format.Rate != 24000 {
		t.Errorf("got format %+v, want audio/pcm at 24000", input.Format)
	}
	if input.Transcription.Model != "gpt-4o-transcribe" || input.Transcription.Language != "en" {
		t.Errorf("got transcription %+v", input.Transcription)
	}
	if input.TurnDetection.Type != "server_vad" || input.TurnDetection.Threshold != 0.5 {
		t.Errorf("got turn detection %+v", input.TurnDetection)
	}
}

func TestTokenClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "rejected api key",
			status:  http.StatusUnauthorized,
			body:    `{"error":"bad key"}`,
			wantMsg: "rejected",
		},
		{
			name:    "endpoint unavailable",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			wantMsg: "unavailable",
		},
		{
			name:    "empty token in response",
			status:  http.StatusOK,
			body:    `{"value":"","expires_at":0}`,
			wantMsg: "empty token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tc := NewTokenClient("sk-test", srv.URL, testSettings(), time.Second, logger.Nop())

			_, err := tc.Issue(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("got error %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestTokenClientMissingKeySkipsRequest(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
	}))
	defer srv.Close()

	tc := NewTokenClient("", srv.URL, testSettings(), time.Second, logger.Nop())

	if _, err := tc.Issue(context.Background()); err == nil {
		t.Fatal("expected error for missing API key")
	}
	if n := atomic.LoadInt64(&hits); n != 0 {
		t.Errorf("endpoint was hit %d times with no API key configured", n)
	}
}
