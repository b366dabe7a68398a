// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

package assistant_test

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
	"github.com/BaSui01/handoff/providers/assistant"
	"github.com/BaSui01/handoff/types"
)

func newClient(t *testing.T, handler http.HandlerFunc) *assistant.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return assistant.NewClient(config.AssistantConfig{
		BaseURL: srv.URL,
		APIKey:  "asst-key",
		Timeout: 2 * time.Second,
	}, zap.NewNop())
}

func TestRespond(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]json.RawMessage

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"I can help with that.","should_escalate":false}`))
	})

	transcript := []types.TranscriptEntry{
		{Speaker: types.SpeakerCustomer, Text: "where is my order", Timestamp: time.Now().UTC()},
	}
	reply, err := client.Respond(context.Background(), "conv-1", transcript)
	require.NoError(t, err)

	assert.Equal(t, "/respond", gotPath)
	assert.Equal(t, "Bearer asst-key", gotAuth)
	assert.JSONEq(t, `"conv-1"`, string(gotBody["conversation_id"]))
	assert.Equal(t, "I can help with that.", reply.Message)
	assert.False(t, reply.ShouldEscalate)
}

func TestRespondEscalates(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Let me connect you to an agent.","should_escalate":true,"reason":"customer requested human"}`))
	})

	reply, err := client.Respond(context.Background(), "conv-2", nil)
	require.NoError(t, err)
	assert.True(t, reply.ShouldEscalate)
	assert.Equal(t, "customer requested human", reply.Reason)
}

func TestRespondRejected(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	reply, err := client.Respond(context.Background(), "conv-3", nil)
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Contains(t, err.Error(), "status=503")
}

func TestRespondMalformedBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := client.Respond(context.Background(), "conv-4", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode assistant response")
}

func TestPingAndHealthCheck(t *testing.T) {
	var gotPath string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	})

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "/status", gotPath)

	st, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Healthy)
}
