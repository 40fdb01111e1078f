// Copyright (c) PageDiag Authors.
// Licensed under the MIT License.

/*
包 diag 是诊断引擎的编排层:把句柄跟踪、frame 跟踪、结构分析、元素
发现与错误增强组合为一个绑定单页面会话的 System。

# 生命周期

System 的状态机为 uninitialized → initializing → ready;初始化失败进
入 failed 并缓存错误,此后每次调用原样重新抛出,直到重新构造实例;
Dispose 进入终态 disposed,之后的操作返回 DISPOSED 结果,绝不 panic。

初始化是一张显式的有序阶段表:

	core-infrastructure → 句柄管理器
	page-dependent      → frame 跟踪器、分析器、发现引擎、增强器
	advanced-features   → 并行分析路径

每个阶段声明前置依赖;任一阶段失败,已构造的阶段按逆序尽力回滚。
并发 Init 通过 singleflight 共享同一次尝试。

# 操作执行

所有诊断操作经统一的执行包装:按配置快照解析超时(自适应覆盖优先,
其次组件级覆盖,最后默认值),操作体在独立协程与计时器竞争,超时即
返回 TIMEOUT 结果,落败的操作体依赖上下文取消信号协作式善后。每次
执行记入操作统计、有界历史、Prometheus 指标与 OTel span;失败在启用
时经增强器补充页面上下文与处置建议。

# 会话管理

Registry 是调用方持有的会话表:Create 登记、Get 查找、Remove 与
CloseAll 释放。没有进程级全局注册表。
*/
package diag
