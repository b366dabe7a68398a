// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
包 gateway 实现面向坐席工作台的实时 WebSocket 网关。

# 概述

网关维护三类房间（topic）：每个活跃会话一个 conversation:<id> 房间，
以及全局的 metrics 与 queue 房间。事件只投递给当前订阅者；
房间成员关系不持久化，断线重连的客户端必须重新加入并重新请求历史。

# 顺序保证

同一房间内的事件按核心组件产生的顺序投递（Hub 单协程处理全部
广播与成员变更）；不同房间之间不保证任何顺序。

# 入站命令

入站命令是一个封闭的变体集合（join / leave / subscribe / unsubscribe /
request_switch / human_reply / fragment），由单一路由表按变体分发，
不做自由字符串匹配。切换请求委托给编排器执行；失败结果只通过
私有事件回给发起方，房间内其他订阅者不会看到失败的尝试。
*/
package gateway
