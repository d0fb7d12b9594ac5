// Package exclusion resolves (path, library) against a rule set, per §4.3.
package exclusion

import (
	"path/filepath"
	"strings"

	"github.com/reelwright/hevcsup/internal/store"
)

// Result is the evaluator's verdict for a single path.
type Result struct {
	Excluded      bool
	Reason        string
	MatchedRuleID int64
}

// Evaluator evaluates a path against a fixed snapshot of exclusion rules.
// Rules must already be ordered per the deterministic evaluation order
// (library_id NULLS FIRST, pattern); store.DB.ListExclusions guarantees
// this.
type Evaluator struct {
	rules []*store.Exclusion
}

// New builds an Evaluator from a rule snapshot.
func New(rules []*store.Exclusion) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate resolves path (scoped to libraryID) against the rule set.
// First match wins.
func (e *Evaluator) Evaluate(path string, libraryID int64) Result {
	for _, rule := range e.rules {
		if rule.LibraryID != nil && *rule.LibraryID != libraryID {
			continue
		}
		if !ruleMatches(rule, path) {
			continue
		}
		reason := "Excluded by rule"
		if rule.Reason != nil && *rule.Reason != "" {
			reason = *rule.Reason
		}
		return Result{Excluded: true, Reason: reason, MatchedRuleID: rule.ID}
	}
	return Result{Excluded: false}
}

func ruleMatches(rule *store.Exclusion, path string) bool {
	switch rule.Type {
	case store.ExclusionTypeFolder:
		return strings.HasPrefix(path, rule.Pattern)
	case store.ExclusionTypePattern:
		if globMatch(rule.Pattern, path) {
			return true
		}
		// base-match: matching also succeeds against the basename alone.
		return globMatch(rule.Pattern, filepath.Base(path))
	default:
		return false
	}
}

// globMatch implements the glob semantics of §4.3: "**" is zero or more
// path segments, "*" is zero or more non-separator characters, "?" is one
// non-separator character.
func globMatch(pattern, path string) bool {
	return matchSegments(splitPattern(pattern), path)
}

// splitPattern tokenizes a glob pattern into literal runs and wildcard
// tokens ("*", "?", "**"); path separators stay inside the literal runs.
type token struct {
	kind    tokenKind
	literal string
}

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenStar
	tokenDoubleStar
	tokenQuestion
)

func splitPattern(pattern string) []token {
	var tokens []token
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, token{kind: tokenLiteral, literal: literal.String()})
			literal.Reset()
		}
	}

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				flush()
				tokens = append(tokens, token{kind: tokenDoubleStar})
				i++
			} else {
				flush()
				tokens = append(tokens, token{kind: tokenStar})
			}
		case '?':
			flush()
			tokens = append(tokens, token{kind: tokenQuestion})
		default:
			literal.WriteRune(runes[i])
		}
	}
	flush()
	return tokens
}

// matchSegments matches the tokenized pattern against path using a simple
// recursive-with-memoization-free backtracking matcher; pattern sizes here
// are short operator-authored rules, not untrusted adversarial input.
func matchSegments(tokens []token, path string) bool {
	return matchAt(tokens, 0, path, 0)
}

func matchAt(tokens []token, ti int, path string, pi int) bool {
	if ti == len(tokens) {
		return pi == len(path)
	}

	tok := tokens[ti]
	switch tok.kind {
	case tokenLiteral:
		if !strings.HasPrefix(path[pi:], tok.literal) {
			return false
		}
		return matchAt(tokens, ti+1, path, pi+len(tok.literal))
	case tokenQuestion:
		if pi >= len(path) || path[pi] == '/' {
			return false
		}
		return matchAt(tokens, ti+1, path, pi+1)
	case tokenStar:
		for j := pi; j <= len(path); j++ {
			if j > pi && path[j-1] == '/' {
				break
			}
			if matchAt(tokens, ti+1, path, j) {
				return true
			}
		}
		return false
	case tokenDoubleStar:
		// "**/" also matches zero segments: retry with the separator that
		// follows "**" dropped.
		if ti+1 < len(tokens) && tokens[ti+1].kind == tokenLiteral && strings.HasPrefix(tokens[ti+1].literal, "/") {
			rest := append([]token{{kind: tokenLiteral, literal: tokens[ti+1].literal[1:]}}, tokens[ti+2:]...)
			if matchAt(rest, 0, path, pi) {
				return true
			}
		}
		for j := pi; j <= len(path); j++ {
			if matchAt(tokens, ti+1, path, j) {
				return true
			}
		}
		return false
	}
	return false
}
