// =============================================================================
// 📦 测试数据工厂 - 页面文档
// =============================================================================
// 提供预定义的 HTML 文档,用于构造 StaticPage
// =============================================================================
package fixtures

import (
	"fmt"
	"strings"
)

// =============================================================================
// 🎯 固定文档
// =============================================================================

// LoginPage 是一个典型的登录表单页面:带 id、name、aria、class、
// data 属性的混合元素,覆盖所有选择器合成路径
const LoginPage = `<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
  <header class="site-header">
    <a href="/" class="logo">Acme</a>
  </header>
  <main>
    <form id="login-form" class="auth-form" action="/login" method="post">
      <label for="username">Username</label>
      <input id="username" name="username" type="text" placeholder="you@example.com">
      <label for="password">Password</label>
      <input id="password" name="password" type="password">
      <button type="submit" class="btn btn-primary" data-testid="login-submit">Sign in</button>
      <a href="/forgot" class="muted">Forgot password?</a>
    </form>
  </main>
  <footer>
    <button class="btn" aria-label="Open help">?</button>
  </footer>
</body>
</html>`

// DashboardPage 包含导航、重复按钮与表格行,适合去重与
// nth 选择器场景
const DashboardPage = `<!DOCTYPE html>
<html>
<head><title>Dashboard</title></head>
<body>
  <nav role="navigation">
    <a href="/home">Home</a>
    <a href="/reports">Reports</a>
    <a href="/settings">Settings</a>
  </nav>
  <section class="toolbar">
    <button class="btn">Refresh</button>
    <button class="btn">Export</button>
    <button class="btn" disabled>Delete</button>
  </section>
  <table class="data-grid">
    <tbody>
      <tr><td>alpha</td><td><button class="row-action">Edit</button></td></tr>
      <tr><td>beta</td><td><button class="row-action">Edit</button></td></tr>
      <tr><td>gamma</td><td><button class="row-action">Edit</button></td></tr>
    </tbody>
  </table>
  <div role="search">
    <input type="search" aria-label="Search records" placeholder="Search">
  </div>
</body>
</html>`

// IframePage 含两个 iframe:一个可注册 content frame,一个始终无法解析
const IframePage = `<!DOCTYPE html>
<html>
<head><title>Embeds</title></head>
<body>
  <h1>Embedded content</h1>
  <iframe id="payment" src="https://pay.test.local/widget"></iframe>
  <iframe id="ads" src="https://ads.test.local/slot"></iframe>
  <p>Trailing content</p>
</body>
</html>`

// =============================================================================
// 🔧 生成器
// =============================================================================

// WideDocument 生成含 n 个兄弟 div 的文档,用于元素规模场景
func WideDocument(n int) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head></head><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `<div class="cell">item %d</div>`, i)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

// DeepDocument 生成嵌套 depth 层的文档,用于深度告警场景
func DeepDocument(depth int) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head></head><body>")
	for i := 0; i < depth; i++ {
		sb.WriteString("<div>")
	}
	sb.WriteString("leaf")
	for i := 0; i < depth; i++ {
		sb.WriteString("</div>")
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

// ButtonGrid 生成 n 个文本各异的按钮,用于文本相似度排序场景
func ButtonGrid(labels ...string) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head></head><body>")
	for i, label := range labels {
		fmt.Fprintf(&sb, `<button class="grid-btn" data-index="%d">%s</button>`, i, label)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}
