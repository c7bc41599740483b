package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxnote/voxnote/pkg/logger"
)

// Credential is a short-lived token scoped to exactly one transcription
// session. It is consumed by a single channel connection and never persisted.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential is past its expiry
func (c *Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// TokenIssuer issues one ephemeral credential per recording attempt
type TokenIssuer interface {
	Issue(ctx context.Context) (*Credential, error)
}

// SessionSettings is the per-session transcription configuration sent at
// credential-issuance time. It is not renegotiated per frame; the session
// treats it as fixed.
type SessionSettings struct {
	SampleRate        int
	Model             string
	Language          string
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int
}

// TokenClient issues ephemeral client secrets against the OpenAI realtime API
type TokenClient struct {
	apiKey     string
	endpoint   string
	settings   SessionSettings
	httpClient *http.Client
	logger     *logger.Logger
}

// NewTokenClient creates a new token client
func NewTokenClient(apiKey, endpoint string, settings SessionSettings, timeout time.Duration, log *logger.Logger) *TokenClient {
	if apiKey == "" {
		log.Warn("OpenAI API key is empty - transcription sessions will not work")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &TokenClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		settings: settings,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("token-client"),
	}
}

// Request/response shapes for the client_secrets endpoint. The session block
// preconfigures the transcription session so the channel needs no further
// negotiation after connect.
type clientSecretRequest struct {
	Session sessionSpec `json:"session"`
}

type sessionSpec struct {
	Type  string    `json:"type"`
	Audio audioSpec `json:"audio"`
}

type audioSpec struct {
	Input audioInputSpec `json:"input"`
}

type audioInputSpec struct {
	Format        formatSpec        `json:"format"`
	Transcription transcriptionSpec `json:"transcription"`
	TurnDetection turnDetectionSpec `json:"turn_detection"`
}

type formatSpec struct {
	Type string `json:"type"`
	Rate int    `json:"rate"`
}

type transcriptionSpec struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type turnDetectionSpec struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type clientSecretResponse struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Issue requests one ephemeral credential. Called exactly once per recording
// attempt; a failed issuance is terminal for that attempt (retry policy
// belongs to the caller).
func (tc *TokenClient) Issue(ctx context.Context) (*Credential, error) {
	if tc.apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not configured")
	}

	reqBody := clientSecretRequest{
		Session: sessionSpec{
			Type: "transcription",
			Audio: audioSpec{
				Input: audioInputSpec{
					Format: formatSpec{
						Type: "audio/pcm",
						Rate: tc.settings.SampleRate,
					},
					Transcription: transcriptionSpec{
						Model:    tc.settings.Model,
						Language: tc.settings.Language,
					},
					TurnDetection: turnDetectionSpec{
						Type:              "server_vad",
						Threshold:         tc.settings.VADThreshold,
						PrefixPaddingMs:   tc.settings.PrefixPaddingMs,
						SilenceDurationMs: tc.settings.SilenceDurationMs,
					},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal client secret request: %w", err)
	}

	tc.logger.Debug("Requesting ephemeral credential",
		logger.String("model", tc.settings.Model),
		logger.Int("sample_rate", tc.settings.SampleRate))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tc.apiKey)

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		tc.logger.Error("Credential issuance failed",
			logger.Int("status_code", resp.StatusCode),
			logger.String("response_body", string(body)))
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("credential endpoint rejected API key (status %d)", resp.StatusCode)
		}
		return nil, fmt.Errorf("credential endpoint unavailable (status %d)", resp.StatusCode)
	}

	var secret clientSecretResponse
	if err := json.Unmarshal(body, &secret); err != nil {
		return nil, fmt.Errorf("failed to decode client secret response: %w", err)
	}
	if secret.Value == "" {
		return nil, fmt.Errorf("credential endpoint returned empty token")
	}

	cred := &Credential{
		Token:     secret.Value,
		ExpiresAt: time.Unix(secret.ExpiresAt, 0),
	}

	tc.logger.Debug("Issued ephemeral credential",
		logger.Time("expires_at", cred.ExpiresAt))

	return cred, nil
}
