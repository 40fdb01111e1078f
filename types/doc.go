// Copyright (c) PageDiag Authors.
// Licensed under the MIT License.

/*
Package types 提供 PageDiag 诊断引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，仅依赖 page（浏览器协作方契约），为 diag、
analyzer、discovery、enrich 等上层模块提供统一的类型契约。所有跨包共享的
结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode       — 结构化诊断错误体系，含组件、操作、建议、Retryable
  - Component / Stage       — 封闭组件枚举与初始化阶段名
  - SystemState             — 编排器生命周期状态机
  - SearchCriteria          — 元素发现的查询条件（文本 / 角色 / 标签 / 属性）
  - AlternativeElement      — 候选元素（置信度 ∈ [0,1]，句柄所有权转移给调用方）
  - PageStructureAnalysis   — 页面结构快照（iframe / 模态 / 元素计数）
  - PerformanceMetrics      — 重量级复杂度指标（深度 / 大子树 / 布局异常）
  - ParallelAnalysisResult  — 并行分析的富结果（逐 frame 子分析 + 池统计）
  - FrameMetadata           — 非持有式 frame 跟踪记录（仅 ID 与标量）
  - OperationResult         — 统一操作信封 {success, data, error, executionTime}
  - SystemStats / HealthReport — 运行计数与健康检查结果

# 错误工具链

  - AsError / IsCode / IsRetryable / GetCode
  - NewError + WithComponent / WithOperation / WithSuggestions 链式构造
*/
package types
