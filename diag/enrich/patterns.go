package enrich

import "regexp"

// messagePattern maps one class of error message to remediation advice.
type messagePattern struct {
	re          *regexp.Regexp
	suggestions []string
}

var messagePatterns = []messagePattern{
	{
		re: regexp.MustCompile(`(?i)timed? ?out|timeout|deadline exceeded`),
		suggestions: []string{
			"increase the operation timeout for this component",
			"check for slow network conditions or heavy page load",
		},
	},
	{
		re: regexp.MustCompile(`(?i)not found|no such element|no node|failed to find|cannot find`),
		suggestions: []string{
			"verify the selector still matches the current DOM",
			"check that the element is visible and was not removed after navigation",
			"check whether the element moved inside an iframe",
		},
	},
	{
		re: regexp.MustCompile(`(?i)disabled|not enabled|not interactable`),
		suggestions: []string{
			"wait for the element to become enabled before interacting",
		},
	},
	{
		re: regexp.MustCompile(`(?i)memory|leak|heap`),
		suggestions: []string{
			"review element handle disposal for leaks",
		},
	},
}

// matchPatterns collects the advice of every pattern the message matches.
func matchPatterns(err error) []string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var sugg []string
	for _, p := range messagePatterns {
		if p.re.MatchString(msg) {
			sugg = append(sugg, p.suggestions...)
		}
	}
	return sugg
}
