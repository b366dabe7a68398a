// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/handoff/config"
	"github.com/BaSui01/handoff/orchestrator"
	"github.com/BaSui01/handoff/providers"
	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🤖 自动助手客户端
// =============================================================================

// Client 实现 orchestrator.Assistant，对接助手服务的 respond 端点。
// 回复生成本身在核心之外，这里只负责拿到应答和升级信号。
type Client struct {
	cfg    config.AssistantConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建助手客户端。
func NewClient(cfg config.AssistantConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "assistant_client")),
	}
}

type respondRequest struct {
	ConversationID string                  `json:"conversation_id"`
	Transcript     []types.TranscriptEntry `json:"transcript"`
}

type respondResponse struct {
	Message        string `json:"message"`
	ShouldEscalate bool   `json:"should_escalate"`
	Reason         string `json:"reason,omitempty"`
}

// Respond 请求助手基于当前转写生成应答。
func (c *Client) Respond(ctx context.Context, conversationID string, transcript []types.TranscriptEntry) (*orchestrator.AssistantReply, error) {
	body, err := json.Marshal(respondRequest{ConversationID: conversationID, Transcript: transcript})
	if err != nil {
		return nil, fmt.Errorf("marshal assistant request: %w", err)
	}

	endpoint := providers.JoinURL(c.cfg.BaseURL, "respond")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.buildHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant respond: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrMsg(resp.Body)
		c.logger.Warn("assistant respond rejected",
			zap.String("conversation_id", conversationID),
			zap.Int("status", resp.StatusCode),
			zap.String("msg", msg),
		)
		return nil, fmt.Errorf("assistant respond: status=%d msg=%s", resp.StatusCode, msg)
	}

	var out respondResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode assistant response: %w", err)
	}
	return &orchestrator.AssistantReply{
		Message:        out.Message,
		ShouldEscalate: out.ShouldEscalate,
		Reason:         out.Reason,
	}, nil
}

// Ping 探测助手服务可达性，供就绪检查使用。
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
		return fmt.Errorf("assistant status: status=%d msg=%s", resp.StatusCode, providers.ReadErrMsg(resp.Body))
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

func (c *Client) buildHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
