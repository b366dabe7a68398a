// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/providers"
)

// =============================================================================
// 📞 电话信令客户端
// =============================================================================

// Client 实现 orchestrator.Telephony，对接呼叫控制风格的 REST API。
// 认证统一使用 Bearer Token；所有动作端点都是 POST JSON。
type Client struct {
	cfg    config.TelephonyConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建电话信令客户端。
func NewClient(cfg config.TelephonyConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "telephony_client")),
	}
}

type speakRequest struct {
	Payload string `json:"payload"`
	Voice   string `json:"voice"`
}

type muteRequest struct {
	CallControlIDs []string `json:"call_control_ids"`
}

// Speak 向通话连接播报一段文本。voiceHint 为空时回退到配置的过渡音色。
func (c *Client) Speak(ctx context.Context, connectionRef, text, voiceHint string) error {
	voice := voiceHint
	if voice == "" {
		voice = c.cfg.TransitionVoice
	}
	if voice == "" {
		voice = "female"
	}
	path := fmt.Sprintf("calls/%s/actions/speak", connectionRef)
	return c.post(ctx, path, speakRequest{Payload: text, Voice: voice})
}

// MuteParticipant 将会议参与者静音。
func (c *Client) MuteParticipant(ctx context.Context, conferenceRef, participantRef string) error {
	path := fmt.Sprintf("conferences/%s/actions/mute", conferenceRef)
	return c.post(ctx, path, muteRequest{CallControlIDs: []string{participantRef}})
}

// UnmuteParticipant 取消会议参与者静音。
func (c *Client) UnmuteParticipant(ctx context.Context, conferenceRef, participantRef string) error {
	path := fmt.Sprintf("conferences/%s/actions/unmute", conferenceRef)
	return c.post(ctx, path, muteRequest{CallControlIDs: []string{participantRef}})
}

// EndCall 结束一条通话腿。
func (c *Client) EndCall(ctx context.Context, callRef string) error {
	path := fmt.Sprintf("calls/%s/actions/hangup", callRef)
	return c.post(ctx, path, struct{}{})
}

// Ping 探测信令服务可达性，供就绪检查使用。
func (c *Client) Ping(ctx context.Context) error {
	endpoint := providers.JoinURL(c.cfg.BaseURL, "status")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.buildHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telephony status: status=%d msg=%s", resp.StatusCode, providers.ReadErrMsg(resp.Body))
	}
	return nil
}

// HealthCheck 带延迟测量的探活。
func (c *Client) HealthCheck(ctx context.Context) (*providers.HealthStatus, error) {
	start := time.Now()
	err := c.Ping(ctx)
	st := &providers.HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	return st, err
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telephony request: %w", err)
	}

	endpoint := providers.JoinURL(c.cfg.BaseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.buildHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telephony %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := providers.ReadErrMsg(resp.Body)
		c.logger.Warn("telephony action rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("msg", msg),
		)
		return fmt.Errorf("telephony %s: status=%d msg=%s", path, resp.StatusCode, msg)
	}
	return nil
}

func (c *Client) buildHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
