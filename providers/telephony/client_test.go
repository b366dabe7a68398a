// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

package telephony_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/providers/telephony"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newFixture(t *testing.T, status int) (*telephony.Client, *[]recordedRequest) {
	t.Helper()

	var recorded []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		recorded = append(recorded, rec)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	client := telephony.NewClient(config.TelephonyConfig{
		BaseURL:         srv.URL,
		APIKey:          "tel-key",
		Timeout:         2 * time.Second,
		TransitionVoice: "female",
	}, zap.NewNop())
	return client, &recorded
}

func TestSpeak(t *testing.T) {
	client, recorded := newFixture(t, http.StatusOK)

	err := client.Speak(context.Background(), "cc-1", "transferring you now", "")
	require.NoError(t, err)

	require.Len(t, *recorded, 1)
	req := (*recorded)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/calls/cc-1/actions/speak", req.Path)
	assert.Equal(t, "Bearer tel-key", req.Auth)
	assert.Equal(t, "transferring you now", req.Body["payload"])
	// voiceHint 为空时回退到配置音色
	assert.Equal(t, "female", req.Body["voice"])
}

func TestSpeakVoiceHintWins(t *testing.T) {
	client, recorded := newFixture(t, http.StatusOK)

	require.NoError(t, client.Speak(context.Background(), "cc-1", "hello", "male"))
	assert.Equal(t, "male", (*recorded)[0].Body["voice"])
}

func TestMuteUnmuteParticipant(t *testing.T) {
	client, recorded := newFixture(t, http.StatusOK)
	ctx := context.Background()

	require.NoError(t, client.MuteParticipant(ctx, "conf-9", "cc-2"))
	require.NoError(t, client.UnmuteParticipant(ctx, "conf-9", "cc-2"))

	require.Len(t, *recorded, 2)
	assert.Equal(t, "/conferences/conf-9/actions/mute", (*recorded)[0].Path)
	assert.Equal(t, "/conferences/conf-9/actions/unmute", (*recorded)[1].Path)
	assert.Equal(t, []any{"cc-2"}, (*recorded)[0].Body["call_control_ids"])
}

func TestEndCall(t *testing.T) {
	client, recorded := newFixture(t, http.StatusOK)

	require.NoError(t, client.EndCall(context.Background(), "cc-3"))
	assert.Equal(t, "/calls/cc-3/actions/hangup", (*recorded)[0].Path)
}

func TestActionRejected(t *testing.T) {
	client, _ := newFixture(t, http.StatusUnprocessableEntity)

	err := client.Speak(context.Background(), "cc-1", "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=422")
}

func TestServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := telephony.NewClient(config.TelephonyConfig{
		BaseURL: srv.URL,
		Timeout: time.Second,
	}, zap.NewNop())

	require.Error(t, client.EndCall(context.Background(), "cc-1"))
}

func TestPingAndHealthCheck(t *testing.T) {
	client, recorded := newFixture(t, http.StatusOK)

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "/status", (*recorded)[0].Path)
	assert.Equal(t, http.MethodGet, (*recorded)[0].Method)

	st, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Healthy)
	assert.GreaterOrEqual(t, st.Latency, time.Duration(0))
}

func TestPingUnhealthy(t *testing.T) {
	client, _ := newFixture(t, http.StatusServiceUnavailable)

	st, err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, st.Healthy)
}
