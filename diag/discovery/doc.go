// Copyright (c) PageDiag Authors.
// Licensed under the MIT License.

/*
Package discovery 在原选择器失效后重新发现目标元素。

# 概述

FindAlternatives 按搜索条件(文本、角色、标签、属性)并发运行至多
四个独立策略,为每个候选合成一个期望能重新唯一定位它的选择器,
以选择器去重后按置信度降序返回。单个策略失败只丢弃该策略的候选,
其余策略照常返回(部分结果优先于整体失败)。

# 置信度

	属性精确匹配   0.9
	显式 role     0.7
	隐式 role     0.6
	标签匹配       0.5
	文本匹配       相似度给分:大小写不敏感全等 1.0;
	              候选包含查询 0.8;查询包含候选 0.6;
	              其余为 1 - 编辑距离/max(len),低于阈值(默认 0.3)丢弃

# 选择器合成

形态从最稳定到最脆弱依次尝试,第一个在页面上唯一命中(Count==1)
的胜出:#id、data-* 属性、语义属性(name/type/aria-label/placeholder/
value/role)、标签加类名、父级限定、父级下 :nth-of-type 与 :nth-child、
祖级限定。全部不唯一时返回命中数最少的形态,合成永不失败。
仅 [A-Za-z_][A-Za-z0-9_-]* 形状的值会进入 #id/.class 形态,
其余一律走带引号的属性选择器,避免 CSS 转义。

# 句柄纪律

策略取得的每个元素句柄都经 handle.Manager 登记;未进入返回集的
候选在调用返回前全部释放,返回的候选句柄所有权转移给调用方。
*/
package discovery
