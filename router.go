package jido

import (
	"reflect"
	"sort"
	"strings"
)

// segKind classifies one path segment of a route pattern.
type segKind int

const (
	segLiteral segKind = iota
	segStar          // "*": matches exactly one segment
	segDoubleStar    // "**": matches zero or more segments
)

type patSeg struct {
	kind    segKind
	literal string
}

// Target is what a matched Route resolves to: either an Action to invoke
// or a list of dispatch adapter configs to fan out to (§4.1).
type Target struct {
	Action   Action
	Dispatch []DispatchConfig
}

func (t Target) empty() bool { return t.Action == nil && len(t.Dispatch) == 0 }

// DispatchConfig names a dispatch adapter and its options (§6).
type DispatchConfig struct {
	Adapter string
	Opts    map[string]any
}

// RouteConfig is the caller-facing description of one route before
// validation (§4.1).
type RouteConfig struct {
	Pattern  string
	Target   Target
	Priority int
	MatchFn  func(Signal) bool
}

// Route is a validated RouteConfig plus its parsed pattern and insertion
// order, used internally for matching.
type Route struct {
	Pattern  string
	segments []patSeg
	Target   Target
	Priority int
	MatchFn  func(Signal) bool
	order    int
}

// Default priority layering (§4.1), informative constants for callers
// building routes at different layers.
const (
	PriorityStrategy = 50
	PriorityAgent    = 0
	PriorityPlugin   = -10
	PriorityScheduled = -20
)

func validPriority(p int) bool { return p >= -100 && p <= 100 }

var literalCharset = func() [256]bool {
	var t [256]bool
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		t[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	t['_'] = true
	t['-'] = true
	return t
}()

func validLiteral(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !literalCharset[s[i]] {
			return false
		}
	}
	return true
}

func parsePattern(pattern string) ([]patSeg, error) {
	if pattern == "" {
		return nil, RoutingError("Router", RoutingInvalidCharacters, "pattern must not be empty")
	}
	if strings.Contains(pattern, "..") {
		return nil, RoutingError("Router", RoutingConsecutiveDots, "pattern has consecutive dots: "+pattern)
	}
	raw := strings.Split(pattern, ".")
	segs := make([]patSeg, 0, len(raw))
	for _, r := range raw {
		switch {
		case r == "**":
			segs = append(segs, patSeg{kind: segDoubleStar})
		case r == "*":
			segs = append(segs, patSeg{kind: segStar})
		case validLiteral(r):
			segs = append(segs, patSeg{kind: segLiteral, literal: r})
		default:
			return nil, RoutingError("Router", RoutingInvalidCharacters, "invalid segment in pattern: "+r)
		}
	}
	for i := 0; i+1 < len(segs); i++ {
		if segs[i].kind != segLiteral && segs[i+1].kind != segLiteral {
			return nil, RoutingError("Router", RoutingDoubleStarNotAlone, "adjacent wildcard segments in pattern: "+pattern)
		}
	}
	return segs, nil
}

// Router holds a validated, ordered set of Routes and matches incoming
// signals against them (§4.1).
type Router struct {
	routes []Route
	next   int
}

// NewRouter validates each RouteConfig and builds a Router. Duplicate
// (pattern, target) pairs are allowed: they coexist as separate routes.
func NewRouter(configs ...RouteConfig) (*Router, error) {
	r := &Router{}
	for _, c := range configs {
		if err := r.addConfig(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Router) addConfig(c RouteConfig) error {
	segs, err := parsePattern(c.Pattern)
	if err != nil {
		return err
	}
	if !validPriority(c.Priority) {
		return RoutingError("Router", RoutingInvalidPriority, "priority out of range [-100,100]")
	}
	if c.Target.empty() {
		return RoutingError("Router", RoutingInvalidTarget, "route target must name an action or dispatch config")
	}
	r.routes = append(r.routes, Route{
		Pattern:  c.Pattern,
		segments: segs,
		Target:   c.Target,
		Priority: c.Priority,
		MatchFn:  c.MatchFn,
		order:    r.next,
	})
	r.next++
	return nil
}

// Add returns a new Router with one more route, leaving the receiver
// unmodified.
func (r *Router) Add(c RouteConfig) (*Router, error) {
	out := r.clone()
	if err := out.addConfig(c); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove returns a new Router with routes matching pattern and an
// equivalent target removed. Matching is structural (reflect.DeepEqual on
// Target.Dispatch, Name() equality on Target.Action).
func (r *Router) Remove(pattern string, target Target) *Router {
	out := &Router{next: r.next}
	for _, rt := range r.routes {
		if rt.Pattern == pattern && sameTarget(rt.Target, target) {
			continue
		}
		out.routes = append(out.routes, rt)
	}
	return out
}

func sameTarget(a, b Target) bool {
	actionEq := (a.Action == nil && b.Action == nil) ||
		(a.Action != nil && b.Action != nil && a.Action.Name() == b.Action.Name())
	return actionEq && reflect.DeepEqual(a.Dispatch, b.Dispatch)
}

// Merge returns a new Router containing this router's routes followed by
// other's, re-sequenced for stable insertion-order tie-breaking.
func (r *Router) Merge(other *Router) *Router {
	out := &Router{}
	for _, rt := range r.routes {
		rt.order = out.next
		out.routes = append(out.routes, rt)
		out.next++
	}
	if other != nil {
		for _, rt := range other.routes {
			rt.order = out.next
			out.routes = append(out.routes, rt)
			out.next++
		}
	}
	return out
}

func (r *Router) clone() *Router {
	out := &Router{next: r.next}
	out.routes = append(out.routes, r.routes...)
	return out
}

// Route matches signal.Type against every route and returns matching
// targets ordered by (priority desc, specificity desc, wildcard count asc,
// insertion order asc) (§4.1, §8 invariant 5).
func (r *Router) Route(signal Signal) []Target {
	segs := splitPath(signal.Type)
	type scored struct {
		route       Route
		specificity int
		wildcards   int
	}
	var matches []scored
	for _, rt := range r.routes {
		if rt.MatchFn != nil && !rt.MatchFn(signal) {
			continue
		}
		if ok, lit, wild := matchSegments(rt.segments, segs); ok {
			matches = append(matches, scored{route: rt, specificity: lit, wildcards: wild})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].route.Priority != matches[j].route.Priority {
			return matches[i].route.Priority > matches[j].route.Priority
		}
		if matches[i].specificity != matches[j].specificity {
			return matches[i].specificity > matches[j].specificity
		}
		if matches[i].wildcards != matches[j].wildcards {
			return matches[i].wildcards < matches[j].wildcards
		}
		return matches[i].route.order < matches[j].route.order
	})
	out := make([]Target, len(matches))
	for i, m := range matches {
		out[i] = m.route.Target
	}
	return out
}

// matchSegments reports whether pattern matches path, and if so the count
// of literal segments matched and the count of wildcard segments in the
// pattern (for specificity scoring).
func matchSegments(pattern []patSeg, path []string) (matched bool, literals int, wildcards int) {
	lit, wild, ok := matchFrom(pattern, path)
	return ok, lit, wild
}

func matchFrom(pattern []patSeg, path []string) (int, int, bool) {
	if len(pattern) == 0 {
		if len(path) == 0 {
			return 0, 0, true
		}
		return 0, 0, false
	}
	head := pattern[0]
	switch head.kind {
	case segLiteral:
		if len(path) == 0 || path[0] != head.literal {
			return 0, 0, false
		}
		lit, wild, ok := matchFrom(pattern[1:], path[1:])
		if !ok {
			return 0, 0, false
		}
		return lit + 1, wild, true
	case segStar:
		if len(path) == 0 {
			return 0, 0, false
		}
		lit, wild, ok := matchFrom(pattern[1:], path[1:])
		if !ok {
			return 0, 0, false
		}
		return lit, wild + 1, true
	case segDoubleStar:
		// Try consuming 0..len(path) segments, preferring the longest
		// consumption first so sibling literal segments after ** still
		// get a chance to match deterministically.
		for consume := len(path); consume >= 0; consume-- {
			lit, wild, ok := matchFrom(pattern[1:], path[consume:])
			if ok {
				return lit, wild + 1, true
			}
		}
		return 0, 0, false
	}
	return 0, 0, false
}
