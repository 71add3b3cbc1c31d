// Package routes classifies request paths into the access tiers enforced by the
// authorization gate.
//
// A path falls into exactly one of four buckets. Admin API patterns are checked
// first, then admin page patterns, then public patterns; anything left over is
// protected and only needs a signed-in user.
package routes

import (
	"fmt"
	"regexp"
)

// Classification is the access tier of a request path.
type Classification int

const (
	// Public paths are reachable without a session.
	Public Classification = iota
	// AdminPage paths render admin UI and require an admin.
	AdminPage
	// AdminAPI paths are admin JSON endpoints and require an admin.
	AdminAPI
	// Protected paths require any signed-in user.
	Protected
)

// String returns the label used in logs and metrics.
func (c Classification) String() string {
	switch c {
	case Public:
		return "public"
	case AdminPage:
		return "admin_page"
	case AdminAPI:
		return "admin_api"
	case Protected:
		return "protected"
	default:
		return "unknown"
	}
}

// PatternSets holds the raw pattern lists for each named set.
// Patterns are regular expressions matched against the whole path.
type PatternSets struct {
	Public     []string `json:"public" yaml:"public"`
	AdminPages []string `json:"adminPages" yaml:"adminPages"`
	AdminAPI   []string `json:"adminApi" yaml:"adminApi"`
}

var defaultPublic = []string{
	"/",
	"/about",
	"/academics",
	"/admissions",
	"/staff",
	"/gallery",
	"/news.*",
	"/blog.*",
	"/calendar",
	"/contact",
	"/notifications",
	"/sign-in.*",
	"/sign-up.*",
	"/api/contact",
	"/api/webhooks.*",
}

// DefaultPatternSets returns a fresh copy of the built-in site patterns.
func DefaultPatternSets() PatternSets {
	return PatternSets{
		Public:     append([]string(nil), defaultPublic...),
		AdminPages: []string{"/admin.*"},
		AdminAPI:   []string{"/api/admin.*"},
	}
}

// Classifier maps paths to a Classification. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	sets       PatternSets
	public     []*regexp.Regexp
	adminPages []*regexp.Regexp
	adminAPI   []*regexp.Regexp
}

// NewClassifier compiles the given pattern sets. Each pattern is anchored at
// both ends, so "/admin.*" never matches "/about" and "/news.*" matches "/news",
// "/news/5" and "/news/5/edit".
func NewClassifier(sets PatternSets) (*Classifier, error) {
	public, err := compileSet("public", sets.Public)
	if err != nil {
		return nil, err
	}
	adminPages, err := compileSet("adminPages", sets.AdminPages)
	if err != nil {
		return nil, err
	}
	adminAPI, err := compileSet("adminApi", sets.AdminAPI)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		sets: PatternSets{
			Public:     append([]string(nil), sets.Public...),
			AdminPages: append([]string(nil), sets.AdminPages...),
			AdminAPI:   append([]string(nil), sets.AdminAPI...),
		},
		public:     public,
		adminPages: adminPages,
		adminAPI:   adminAPI,
	}, nil
}

// DefaultClassifier returns a classifier over DefaultPatternSets.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultPatternSets())
	if err != nil {
		panic(fmt.Sprintf("default route patterns do not compile: %v", err))
	}
	return c
}

// Classify returns the tier for path. An empty path is treated as "/".
func (c *Classifier) Classify(path string) Classification {
	if path == "" {
		path = "/"
	}

	switch {
	case matchAny(c.adminAPI, path):
		return AdminAPI
	case matchAny(c.adminPages, path):
		return AdminPage
	case matchAny(c.public, path):
		return Public
	default:
		return Protected
	}
}

// Sets returns a copy of the raw patterns the classifier was built from.
func (c *Classifier) Sets() PatternSets {
	return PatternSets{
		Public:     append([]string(nil), c.sets.Public...),
		AdminPages: append([]string(nil), c.sets.AdminPages...),
		AdminAPI:   append([]string(nil), c.sets.AdminAPI...),
	}
}

func compileSet(name string, patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("routes.%s[%d] %q: invalid pattern: %w", name, i, p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(set []*regexp.Regexp, path string) bool {
	for _, re := range set {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
