// Copyright (c) PageDiag Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 PageDiag 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力,避免各包
重复实现相似的测试基础设施。核心是 StaticPage:一个在解析后的
HTML 文档上工作的 page.Page 内存实现,使组件测试无需真实浏览器。

# 核心能力

  - StaticPage / StaticElement: 以 x/net/html 解析文档,支持本引擎
    合成的全部选择器形态(id/class/attr/组合/后代/子代/nth),
    Eval 通过 EvalFn 钩子注入,句柄创建与释放全程计数
  - StaticFrame: 可配置的 page.Frame 实现,支持注入探活失败与延迟
  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext,
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual
  - 数据辅助: MustJSON / MustParseJSON / RawJSON

# 典型用法

	pg := testutil.NewStaticPage(t, fixtures.LoginPage)
	pg.EvalFn = func(js string, args ...any) (json.RawMessage, error) {
		return testutil.RawJSON(map[string]any{"hasDialog": false}), nil
	}

	els, err := pg.Query(ctx, "#login-form input")
	// ... 断言后检查句柄纪律
	require.Zero(t, pg.OpenHandles())

子包 fixtures 提供预定义的 HTML 文档与文档生成器。
*/
package testutil
