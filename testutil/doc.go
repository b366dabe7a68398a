// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 Handoff 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertTranscriptEqual / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON / CopyTranscript，
    简化测试数据构造与深拷贝

# 子包

  - testutil/mocks: 协作方 Mock 实现，包括 MockTelephony（话务信令）、
    MockLedger（审计账本）、MockBroadcaster（实时广播）、
    MockSwitcher（切换协调器）与 MockAssistant（AI 座席），
    均支持 Builder 模式错误注入与调用记录

# 使用示例

	ctx := testutil.TestContext(t)
	tel := mocks.NewMockTelephony().WithError("speak", errors.New("line busy"))
	err := tel.Speak(ctx, "cc-1", "正在为您转接人工客服", "")
*/
package testutil
