// Copyright (c) PageDiag Authors.
// Licensed under the MIT License.

/*
包 analyzer 对活动页面做结构体检:iframe 可达性、模态遮挡、元素规模。

# 概述

analyzer 提供三类互相独立的检查:

  - AnalyzeStructure:并发执行 iframe / 模态 / 元素三个探针,
    单个探针失败仅清零自己的区段,其余照常产出(部分结果优于全无)
  - AnalyzePerformanceMetrics:单次遍历元素树的重型指标采集,
    输出 DOM 规模、交互元素、资源引用与布局异常;任何失败都
    退化为零值指标加一条 danger 告警,绝不向外抛错
  - ShouldUseParallelAnalysis:复杂度评分
    (元素数 + iframe×100 + 表单×10),指导是否走并行路径

# 并行路径

AnalyzeStructureParallel 在三探针之外,把每个可达 iframe 的子分析
派发到 internal/pool 的有界工作池,合并为 ParallelAnalysisResult。
单个 frame 分析失败只影响自己的结果槽位。

# 句柄纪律

探针获取的元素句柄一律经 handle.Manager 跟踪,并在探针返回前
defer 释放;可达 frame 同步注册进 frames.Tracker。
*/
package analyzer
