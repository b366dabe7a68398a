// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

package providers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/handoff/internal/tlsutil"
)

// =============================================================================
// 🔌 协作方客户端公共设施
// =============================================================================

// HealthStatus 协作方探活结果
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// NewHTTPClient 创建协作方出站 HTTP 客户端，统一走加固的 TLS 配置。
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return tlsutil.SecureHTTPClient(timeout)
}

// ReadErrMsg 从错误响应体中提取简短的错误描述，最多读取 512 字节。
func ReadErrMsg(body io.Reader) string {
	buf, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}

// JoinURL 拼接 BaseURL 与路径，容忍两侧斜杠差异。
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
