package store

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Filter selects entries. All set fields must match. Limit keeps the
// most recent N matches and is applied last.
type Filter struct {
	Levels      []Level
	Since       string // epoch ms or a relative duration such as "5m"
	ExtensionID string
	Search      string // case-insensitive substring of message or source
	URLPattern  string // case-insensitive regex, network only
	Limit       int
}

var relativeTime = regexp.MustCompile(`^(\d+)([smhd])$`)

var timeUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseTimeParam resolves value to an epoch-ms lower bound. A string of
// digits is an absolute timestamp and "<n><s|m|h|d>" is relative to now.
// A window reaching back past the epoch clamps to 0. Anything else
// resolves to 0 so the bound matches every entry; ok is false in that case
// so the caller can report it.
func ParseTimeParam(value string, now int64) (since int64, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, true
	}
	if m := relativeTime.FindStringSubmatch(value); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		unit := timeUnits[m[2]].Milliseconds()
		if n > now/unit {
			return 0, true
		}
		return now - n*unit, true
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ms, true
	}
	return 0, false
}

// compiled is a Filter with its time bound and regex resolved.
type compiled struct {
	Filter
	since  int64
	search string
	url    *regexp.Regexp
}

func (f Filter) compile(now int64) (compiled, bool, error) {
	c := compiled{Filter: f, search: strings.ToLower(f.Search)}
	since, ok := ParseTimeParam(f.Since, now)
	c.since = since
	if f.URLPattern != "" {
		re, err := regexp.Compile("(?i)" + f.URLPattern)
		if err != nil {
			return c, ok, fmt.Errorf("invalid urlPattern %q: %w", f.URLPattern, err)
		}
		c.url = re
	}
	return c, ok, nil
}

func (c compiled) matchLog(e LogEntry) bool {
	if len(c.Levels) > 0 && !slices.Contains(c.Levels, e.Level) {
		return false
	}
	if e.Timestamp < c.since {
		return false
	}
	if c.ExtensionID != "" && e.ExtensionID != c.ExtensionID {
		return false
	}
	if c.search != "" &&
		!strings.Contains(strings.ToLower(e.Message), c.search) &&
		!strings.Contains(strings.ToLower(e.Source), c.search) {
		return false
	}
	return true
}

func (c compiled) matchNetwork(e NetworkEntry) bool {
	if e.Timestamp < c.since {
		return false
	}
	if c.ExtensionID != "" && e.ExtensionID != c.ExtensionID {
		return false
	}
	if c.url != nil && !c.url.MatchString(e.URL) {
		return false
	}
	if c.search != "" && !strings.Contains(strings.ToLower(e.URL), c.search) {
		return false
	}
	return true
}

func selectEntries[T any](items []T, limit int, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
