// Package enrich augments failures with fresh page context and remediation
// suggestions. Three enrichers cover the common failure classes (element
// not found, operation timeout, batch failure); each gathers a structure
// analysis, and for lookup failures a discovery pass, then combines
// message-pattern advice with contextual rules, deduplicated and capped.
// The original error is never altered: it stays the cause with its message
// preserved, and enrichment failures degrade to pattern-only suggestions.
package enrich
