package archive_extractor

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Filter decides whether an archive entry is skipped. It is tested against the
// entry path exactly as stored in the archive, before any filesystem change.
type Filter interface {
	Exclude(path string) bool
}

type FilterFunc func(path string) bool

func (ff FilterFunc) Exclude(path string) bool {
	return ff(path)
}

type MatchMode string

const (
	MatchRegexp MatchMode = "regexp"
	MatchPrefix MatchMode = "prefix"
	MatchSuffix MatchMode = "suffix"
	MatchSubstr MatchMode = "substr"
	MatchGlob   MatchMode = "glob"
)

var MatchModes = []MatchMode{MatchRegexp, MatchPrefix, MatchSuffix, MatchSubstr, MatchGlob}

type ErrMatchMode struct {
	mode MatchMode
}

func (e *ErrMatchMode) Error() string {
	return fmt.Sprintf("invalid match mode %q, expecting one of %v", string(e.mode), MatchModes)
}

type matchFilter struct {
	re      *regexp.Regexp
	pattern string
	mode    MatchMode
}

// NewMatchFilter excludes every path matching pattern under mode.
func NewMatchFilter(pattern string, mode MatchMode) (Filter, error) {
	mf := &matchFilter{pattern: pattern, mode: mode}
	switch mode {
	case MatchRegexp:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		mf.re = re
	case MatchGlob:
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, err
		}
	case MatchPrefix, MatchSuffix, MatchSubstr:
	default:
		return nil, &ErrMatchMode{mode}
	}
	return mf, nil
}

func RegexpFilter(expr string) (Filter, error) {
	return NewMatchFilter(expr, MatchRegexp)
}

func MustRegexpFilter(expr string) Filter {
	f, err := RegexpFilter(expr)
	if err != nil {
		panic(err)
	}
	return f
}

func (mf *matchFilter) Exclude(name string) bool {
	switch mf.mode {
	case MatchRegexp:
		return mf.re.MatchString(name)
	case MatchPrefix:
		return strings.HasPrefix(name, mf.pattern)
	case MatchSuffix:
		return strings.HasSuffix(name, mf.pattern)
	case MatchSubstr:
		return strings.Contains(name, mf.pattern)
	default:
		matched, _ := path.Match(mf.pattern, strings.TrimSuffix(name, "/"))
		return matched
	}
}

// AnyOf excludes a path when at least one of filters does. Nil filters are ignored.
func AnyOf(filters ...Filter) Filter {
	return FilterFunc(func(name string) bool {
		for _, f := range filters {
			if f != nil && f.Exclude(name) {
				return true
			}
		}
		return false
	})
}

func excluded(f Filter, name string) bool {
	return f != nil && f.Exclude(name)
}
