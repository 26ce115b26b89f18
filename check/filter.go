package check

import (
	"fmt"
	"regexp"
	"strings"
)

// nameFilter matches group or topic names against allow and ignore lists. Ignored names take precedence.
type nameFilter struct {
	allowed []*regexp.Regexp
	ignored []*regexp.Regexp
}

// newNameFilter compiles the expressions. A nil allow list allows every name.
func newNameFilter(allowed []string, ignored []string) (nameFilter, error) {
	var filter nameFilter
	var err error
	if allowed != nil {
		filter.allowed, err = compileRegexes(allowed)
		if err != nil {
			return nameFilter{}, err
		}
	}
	filter.ignored, err = compileRegexes(ignored)
	if err != nil {
		return nameFilter{}, err
	}
	return filter, nil
}

func (f nameFilter) IsAllowed(name string) bool {
	isAllowed := f.allowed == nil
	for _, regex := range f.allowed {
		if regex.MatchString(name) {
			isAllowed = true
			break
		}
	}

	for _, regex := range f.ignored {
		if regex.MatchString(name) {
			isAllowed = false
			break
		}
	}
	return isAllowed
}

// compileRegex compiles "/expr/" as regular expression and everything else as literal.
func compileRegex(expr string) (*regexp.Regexp, error) {
	if len(expr) > 1 && strings.HasPrefix(expr, "/") && strings.HasSuffix(expr, "/") {
		substr := expr[1 : len(expr)-1]
		return regexp.Compile(substr)
	}

	return regexp.Compile("^" + regexp.QuoteMeta(expr) + "$")
}

func compileRegexes(expr []string) ([]*regexp.Regexp, error) {
	compiledExpressions := make([]*regexp.Regexp, len(expr))
	for i, exprStr := range expr {
		expr, err := compileRegex(exprStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression string '%v': %w", exprStr, err)
		}
		compiledExpressions[i] = expr
	}

	return compiledExpressions, nil
}
