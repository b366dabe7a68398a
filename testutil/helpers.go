// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	testutil.AssertTranscriptEqual(t, expected, actual)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/handoff/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertTranscriptEqual 断言两个对话记录切片相等（顺序敏感）
func AssertTranscriptEqual(t *testing.T, expected, actual []types.TranscriptEntry) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Errorf("transcript length mismatch: expected %d, got %d", len(expected), len(actual))
		return
	}

	for i := range expected {
		if expected[i].Speaker != actual[i].Speaker {
			t.Errorf("entry %d: speaker mismatch: expected %s, got %s", i, expected[i].Speaker, actual[i].Speaker)
		}
		if expected[i].Text != actual[i].Text {
			t.Errorf("entry %d: text mismatch: expected %q, got %q", i, expected[i].Text, actual[i].Text)
		}
	}
}

// AssertEventuallyTrue 轮询等待条件满足，超时则失败
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("condition not met within timeout")
}

// =============================================================================
// 📦 数据辅助
// =============================================================================

// MustJSON 序列化为 JSON，失败直接终止测试
func MustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustParseJSON 解析 JSON，失败直接终止测试
func MustParseJSON(t *testing.T, data []byte, dst interface{}) {
	t.Helper()

	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// CopyTranscript 深拷贝对话记录切片
func CopyTranscript(entries []types.TranscriptEntry) []types.TranscriptEntry {
	if entries == nil {
		return nil
	}
	out := make([]types.TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}
