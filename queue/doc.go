// Copyright (c) Handoff Authors.
// Licensed under the MIT License.

/*
包 queue 维护仪表盘的待接入会话投影。

投影是纯派生数据，从不持久化：按固定间隔全量扫描会话存储，
重算等待时长，与上一次快照做差分后向 queue 房间广播
queue_add / queue_update / queue_remove / queue_message_preview，
同时向 metrics 房间广播聚合计数。
*/
package queue
