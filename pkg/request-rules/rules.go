// Package rules decides which requests and pages take part in
// anti-reload caching.
package rules

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

type Rules []Rule

// Rule matches a URL when every non-empty field matches.
type Rule struct {
	// Path must start with Prefix.
	Prefix string `yaml:"prefix"`
	// Path must equal Path.
	Path string `yaml:"path"`
	// The full URL string must contain Contains.
	Contains string `yaml:"contains"`
	// Each query parameter must be present and, for non-empty values, equal.
	Query map[string]string `yaml:"query"`
}

// DefaultResources matches the paginated list API.
var DefaultResources = Rules{{Contains: "/ajax/discovery"}}

// DefaultPages matches the list pages themselves.
var DefaultPages = Rules{{Prefix: "/discovery"}}

// Match reports whether the request is a GET for a matching URL.
// Other methods never match.
func (r Rules) Match(req *http.Request) bool {
	if req.Method != "" && req.Method != http.MethodGet {
		return false
	}
	return r.MatchURL(req.URL)
}

// MatchURL reports whether any rule matches the URL.
func (r Rules) MatchURL(u *url.URL) bool {
	return r.find(u) != nil
}

func (r Rules) find(u *url.URL) *Rule {
	if u == nil {
		return nil
	}
	log.Trace().Msgf("Finding rule for %s", u.String())
rulesLoop:
	for i, rule := range r {
		if rule.Path != "" && rule.Path != u.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(u.Path, rule.Prefix) {
			continue
		}
		if rule.Contains != "" && !strings.Contains(u.String(), rule.Contains) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := u.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return &r[i]
	}
	return nil
}
