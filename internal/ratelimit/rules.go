package ratelimit

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Rule binds an endpoint pattern of the form METHOD:/path to its limits.
// Patterns containing glob metacharacters (*, ?, [, {) are wildcard rules; * also matches "/".
type Rule struct {
	Endpoint string `yaml:"endpoint"`
	Limits   `yaml:",inline"`
}

type wildcardRule struct {
	pattern string
	matcher glob.Glob
	limits  Limits
}

// Rules resolves the limits for an endpoint. Exact rules win over wildcards; among wildcards the
// first declared match wins, so more specific patterns must be listed before broader ones.
type Rules struct {
	defaults  Limits
	exact     map[string]Limits
	wildcards []wildcardRule
}

// NewRules compiles rules in declared order. A duplicated exact endpoint is an error.
func NewRules(defaults Limits, rules []Rule) (*Rules, error) {
	r := &Rules{defaults: defaults, exact: make(map[string]Limits)}
	for _, rule := range rules {
		endpoint, err := normalizeEndpoint(rule.Endpoint)
		if err != nil {
			return nil, err
		}
		if !strings.ContainsAny(endpoint, "*?[{") {
			if _, dup := r.exact[endpoint]; dup {
				return nil, fmt.Errorf("ratelimit: duplicate rule for %s", endpoint)
			}
			r.exact[endpoint] = rule.Limits
			continue
		}
		g, err := glob.Compile(endpoint)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: compile %q: %w", endpoint, err)
		}
		r.wildcards = append(r.wildcards, wildcardRule{pattern: endpoint, matcher: g, limits: rule.Limits})
	}
	return r, nil
}

// Defaults returns the limits used when no rule matches.
func (r *Rules) Defaults() Limits {
	return r.defaults
}

// Match returns the limits for method and path along with the matching pattern ("" for defaults).
func (r *Rules) Match(method, path string) (Limits, string) {
	endpoint := Endpoint(method, path)
	if l, ok := r.exact[endpoint]; ok {
		return l, endpoint
	}
	for _, w := range r.wildcards {
		if w.matcher.Match(endpoint) {
			return w.limits, w.pattern
		}
	}
	return r.defaults, ""
}

// Endpoint formats method and path as METHOD:/path with a trailing slash removed.
func Endpoint(method, path string) string {
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return strings.ToUpper(method) + ":" + path
}

func normalizeEndpoint(raw string) (string, error) {
	method, path, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || method == "" || !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("ratelimit: endpoint %q must look like METHOD:/path", raw)
	}
	return Endpoint(method, path), nil
}

// DefaultRules is the built-in endpoint table. The /api/*/login and /api/*/refresh patterns cover the
// per-user-type auth routes.
func DefaultRules() []Rule {
	return []Rule{
		{Endpoint: "POST:/api/auth/login", Limits: Limits{PerMinute: 5, PerHour: 20, PerDay: 100}},
		{Endpoint: "POST:/api/auth/refresh", Limits: Limits{PerMinute: 10, PerHour: 100, PerDay: 500}},
		{Endpoint: "POST:/api/clientes", Limits: Limits{PerMinute: 10, PerHour: 200, PerDay: 1000}},
		{Endpoint: "POST:/api/sessoes", Limits: Limits{PerMinute: 20, PerHour: 500, PerDay: 2000}},
		{Endpoint: "GET:/api/clientes", Limits: Limits{PerMinute: 100, PerHour: 2000, PerDay: 20000}},
		{Endpoint: "GET:/api/sessoes", Limits: Limits{PerMinute: 100, PerHour: 2000, PerDay: 20000}},
		{Endpoint: "DELETE:/api/clientes/*", Limits: Limits{PerMinute: 2, PerHour: 10, PerDay: 50}},
		{Endpoint: "PUT:/api/admin/*", Limits: Limits{PerMinute: 5, PerHour: 50, PerDay: 200}},
		{Endpoint: "POST:/api/*/login", Limits: Limits{PerMinute: 5, PerHour: 20, PerDay: 100}},
		{Endpoint: "POST:/api/*/refresh", Limits: Limits{PerMinute: 10, PerHour: 100, PerDay: 500}},
	}
}

type rulesFile struct {
	Defaults *Limits `yaml:"defaults"`
	Rules    []Rule  `yaml:"rules"`
}

// ParseRules decodes a YAML rule document. The optional defaults block replaces the given defaults.
func ParseRules(data []byte, defaults Limits) (*Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ratelimit: parse rules: %w", err)
	}
	if f.Defaults != nil {
		defaults = *f.Defaults
	}
	if defaults.PerMinute <= 0 || defaults.PerHour <= 0 || defaults.PerDay <= 0 {
		return nil, errors.New("ratelimit: default limits must be positive")
	}
	return NewRules(defaults, f.Rules)
}

// LoadRules reads a YAML rule file. An empty path yields DefaultRules.
func LoadRules(path string, defaults Limits) (*Rules, error) {
	if path == "" {
		return NewRules(defaults, DefaultRules())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: read rules: %w", err)
	}
	return ParseRules(data, defaults)
}
