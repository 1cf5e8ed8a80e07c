package rules

import (
	"net/http"
	"net/url"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestRuleFinder(t *testing.T) {
	makeURL := func(s string) *url.URL {
		u, _ := url.Parse(s)
		return u
	}

	rules := Rules{
		Rule{Prefix: "/api/", Query: map[string]string{"mode": "all"}},
		Rule{Path: "/feed", Query: map[string]string{"cursor": ""}},
		Rule{Contains: "/ajax/discovery"},
	}

	if rule := rules.find(makeURL("/api/list?mode=all")); rule == nil || rule.Prefix != "/api/" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeURL("/api/list?mode=r18")); rule != nil {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeURL("/feed?cursor=")); rule == nil || rule.Path != "/feed" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeURL("/feed")); rule != nil {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeURL("https://www.example.com/ajax/discovery/artworks?limit=60")); rule == nil || rule.Contains == "" {
		t.Fatal("Incorrect rule")
	}
}

func TestMatchOnlyGet(t *testing.T) {
	get, _ := http.NewRequest("GET", "https://www.example.com/ajax/discovery/artworks", nil)
	post, _ := http.NewRequest("POST", "https://www.example.com/ajax/discovery/artworks", nil)
	other, _ := http.NewRequest("GET", "https://www.example.com/ajax/user/extra", nil)

	if !DefaultResources.Match(get) {
		t.Fatal("GET of list API not matched")
	}
	if DefaultResources.Match(post) {
		t.Fatal("POST matched")
	}
	if DefaultResources.Match(other) {
		t.Fatal("Unrelated API matched")
	}
}

func TestDefaultPages(t *testing.T) {
	page, _ := url.Parse("https://www.example.com/discovery/users")
	artwork, _ := url.Parse("https://www.example.com/artworks/123")
	if !DefaultPages.MatchURL(page) || DefaultPages.MatchURL(artwork) {
		t.Fatal("Incorrect page match")
	}
	if DefaultPages.MatchURL(nil) {
		t.Fatal("Nil URL matched")
	}
}

func TestRulesFromYAML(t *testing.T) {
	src := `
- prefix: /discovery
- contains: /ajax/discovery
  query:
    mode: all
`
	var r Rules
	if err := yaml.Unmarshal([]byte(src), &r); err != nil {
		t.Fatal(err)
	}
	if len(r) != 2 || r[0].Prefix != "/discovery" || r[1].Query["mode"] != "all" {
		t.Fatalf("Rules are %+v", r)
	}
}
