// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
Package ledger 提供耐久的审计账本（关系型数据库，GORM）。

# 概述

账本与临时会话存储分离：会话存储回答"现在"，账本回答"曾经"。
协调核心对账本只追加（通话记录、切换记录）和做回退查询
（FindCallStatus，用于区分"通话确实结束"与"会话仅仅过期"）。

# 语义要点

  - AppendSwitchRecord: 每次成功切换恰好一条；失败的切换尝试不记录
  - AppendCallRecord / UpdateCallStatus: 通话终止时写入终态记录，
    不依赖会话存储的 TTL 过期作为生命周期信号
  - 账本写入失败由调用方记录日志后吞掉，绝不使已生效的切换失败
*/
package ledger
