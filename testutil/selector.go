package testutil

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// CSS selector subset used by StaticPage: tag, #id, .class, [attr],
// [attr=value] (quoted or bare), compound selectors, descendant and child
// combinators, comma groups, :nth-of-type(n) and :nth-child(n) with a
// literal index. This covers every selector shape the engine synthesizes.

type attrCond struct {
	name     string
	value    string
	hasValue bool
}

type compound struct {
	tag       string
	id        string
	classes   []string
	attrs     []attrCond
	nthOfType int
	nthChild  int
}

type complexSelector struct {
	compounds   []compound
	combinators []byte // between compounds: ' ' or '>'
}

func parseSelectorGroup(s string) ([]complexSelector, error) {
	var group []complexSelector
	for _, part := range splitTopLevel(s) {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty selector in group %q", s)
		}
		sel, err := parseComplex(part)
		if err != nil {
			return nil, err
		}
		group = append(group, sel)
	}
	if len(group) == 0 {
		return nil, fmt.Errorf("empty selector")
	}
	return group, nil
}

// splitTopLevel splits on commas outside brackets and quotes.
func splitTopLevel(s string) []string {
	var (
		parts   []string
		depth   int
		quote   byte
		current strings.Builder
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == ',' && depth == 0:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(ch)
	}
	parts = append(parts, current.String())
	return parts
}

func parseComplex(s string) (complexSelector, error) {
	var sel complexSelector
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) && s[j] == ' ' {
			j++
		}
		comb := byte(0)
		if j > i {
			comb = ' '
		}
		if j < len(s) && s[j] == '>' {
			comb = '>'
			j++
			for j < len(s) && s[j] == ' ' {
				j++
			}
		}
		i = j
		if i >= len(s) {
			if comb == '>' {
				return sel, fmt.Errorf("selector %q ends with a combinator", s)
			}
			break
		}
		if comb != 0 {
			if len(sel.compounds) == 0 {
				return sel, fmt.Errorf("selector %q starts with a combinator", s)
			}
			sel.combinators = append(sel.combinators, comb)
		}
		c, next, err := parseCompound(s, i)
		if err != nil {
			return sel, err
		}
		sel.compounds = append(sel.compounds, c)
		i = next
	}
	if len(sel.compounds) == 0 {
		return sel, fmt.Errorf("empty selector")
	}
	if len(sel.combinators) != len(sel.compounds)-1 {
		return sel, fmt.Errorf("malformed selector %q", s)
	}
	return sel, nil
}

func parseCompound(s string, i int) (compound, int, error) {
	var c compound
	parsedAny := false
	for i < len(s) {
		switch ch := s[i]; {
		case ch == ' ' || ch == '>':
			return c, i, nil
		case ch == '*':
			i++
			parsedAny = true
		case ch == '#':
			name, next := readIdent(s, i+1)
			if name == "" {
				return c, i, fmt.Errorf("empty id selector at %q", s[i:])
			}
			c.id = name
			i = next
			parsedAny = true
		case ch == '.':
			name, next := readIdent(s, i+1)
			if name == "" {
				return c, i, fmt.Errorf("empty class selector at %q", s[i:])
			}
			c.classes = append(c.classes, name)
			i = next
			parsedAny = true
		case ch == '[':
			cond, next, err := readAttrCond(s, i)
			if err != nil {
				return c, i, err
			}
			c.attrs = append(c.attrs, cond)
			i = next
			parsedAny = true
		case ch == ':':
			name, idx, next, err := readPositional(s, i)
			if err != nil {
				return c, i, err
			}
			switch name {
			case "nth-of-type":
				c.nthOfType = idx
			case "nth-child":
				c.nthChild = idx
			default:
				return c, i, fmt.Errorf("unsupported pseudo-class :%s", name)
			}
			i = next
			parsedAny = true
		default:
			name, next := readIdent(s, i)
			if name == "" || parsedAny {
				return c, i, fmt.Errorf("unexpected character %q in selector %q", ch, s)
			}
			c.tag = strings.ToLower(name)
			i = next
			parsedAny = true
		}
	}
	return c, i, nil
}

func readIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		ch := s[i]
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' ||
			ch >= '0' && ch <= '9' || ch == '-' || ch == '_' {
			i++
			continue
		}
		break
	}
	return s[start:i], i
}

func readAttrCond(s string, i int) (attrCond, int, error) {
	i++ // consume '['
	name, i := readIdent(s, i)
	if name == "" {
		return attrCond{}, i, fmt.Errorf("empty attribute name in %q", s)
	}
	cond := attrCond{name: name}
	if i < len(s) && s[i] == ']' {
		return cond, i + 1, nil
	}
	if i >= len(s) || s[i] != '=' {
		return cond, i, fmt.Errorf("malformed attribute selector in %q", s)
	}
	i++
	cond.hasValue = true
	if i < len(s) && (s[i] == '"' || s[i] == '\'') {
		quote := s[i]
		i++
		start := i
		for i < len(s) && s[i] != quote {
			i++
		}
		if i >= len(s) {
			return cond, i, fmt.Errorf("unterminated quoted value in %q", s)
		}
		cond.value = s[start:i]
		i++
	} else {
		start := i
		for i < len(s) && s[i] != ']' {
			i++
		}
		cond.value = s[start:i]
	}
	if i >= len(s) || s[i] != ']' {
		return cond, i, fmt.Errorf("unterminated attribute selector in %q", s)
	}
	return cond, i + 1, nil
}

func readPositional(s string, i int) (name string, idx, next int, err error) {
	i++ // consume ':'
	name, i = readIdent(s, i)
	if i >= len(s) || s[i] != '(' {
		return name, 0, i, fmt.Errorf("pseudo-class :%s requires an index", name)
	}
	i++
	start := i
	for i < len(s) && s[i] != ')' {
		i++
	}
	if i >= len(s) {
		return name, 0, i, fmt.Errorf("unterminated pseudo-class in %q", s)
	}
	idx, err = strconv.Atoi(strings.TrimSpace(s[start:i]))
	if err != nil || idx < 1 {
		return name, 0, i, fmt.Errorf("pseudo-class :%s needs a positive index", name)
	}
	return name, idx, i + 1, nil
}

// queryAll returns elements under root matching any selector in the
// group, in document order.
func queryAll(root *html.Node, selector string) ([]*html.Node, error) {
	group, err := parseSelectorGroup(selector)
	if err != nil {
		return nil, err
	}
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, sel := range group {
				if matchComplex(n, sel) {
					out = append(out, n)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func matchComplex(n *html.Node, sel complexSelector) bool {
	last := len(sel.compounds) - 1
	if !matchCompound(n, sel.compounds[last]) {
		return false
	}
	return matchAncestors(n, sel, last-1)
}

func matchAncestors(n *html.Node, sel complexSelector, k int) bool {
	if k < 0 {
		return true
	}
	if sel.combinators[k] == '>' {
		p := elementParent(n)
		if p == nil || !matchCompound(p, sel.compounds[k]) {
			return false
		}
		return matchAncestors(p, sel, k-1)
	}
	for p := elementParent(n); p != nil; p = elementParent(p) {
		if matchCompound(p, sel.compounds[k]) && matchAncestors(p, sel, k-1) {
			return true
		}
	}
	return false
}

func matchCompound(n *html.Node, c compound) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && getAttr(n, "id") != c.id {
		return false
	}
	for _, class := range c.classes {
		if !hasClass(n, class) {
			return false
		}
	}
	for _, cond := range c.attrs {
		val, ok := lookupAttr(n, cond.name)
		if !ok {
			return false
		}
		if cond.hasValue && val != cond.value {
			return false
		}
	}
	if c.nthOfType > 0 && nthOfTypeIndex(n) != c.nthOfType {
		return false
	}
	if c.nthChild > 0 && nthChildIndex(n) != c.nthChild {
		return false
	}
	return true
}

func elementParent(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nthChildIndex(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

func nthOfTypeIndex(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == n.Data {
			idx++
		}
	}
	return idx
}
