package discovery

import "strings"

// TextSimilarity 计算查询文本与候选文本的相似度,范围 [0,1]。
// 匹配规则从严到宽:大小写不敏感全等 1.0;候选包含查询 0.8;
// 查询包含候选 0.6;其余回退到归一化编辑距离 1 - distance/max(len)。
func TextSimilarity(query, candidate string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))

	switch {
	case q == "" || c == "":
		return 0
	case q == c:
		return 1.0
	case strings.Contains(c, q):
		return 0.8
	case strings.Contains(q, c):
		return 0.6
	}
	return levenshteinSimilarity(q, c)
}

// levenshteinSimilarity 返回归一化的编辑距离相似度。
// 按 rune 计算,避免多字节文本被按字节错切。
func levenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)

	// 动态规划计算编辑距离
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 0; i <= m; i++ {
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if ra[i-1] == rb[j-1] {
				dp[i][j] = dp[i-1][j-1]
			} else {
				dp[i][j] = min(dp[i-1][j]+1, min(dp[i][j-1]+1, dp[i-1][j-1]+1))
			}
		}
	}

	maxLen := max(m, n)
	return 1.0 - float64(dp[m][n])/float64(maxLen)
}
