// Package fetchplan parses fetch plan directives such as "*:-1" or
// "city:1 comments:0".
package fetchplan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/sixpeteunder/orientdb-odm/models"
)

// Wildcard is the path matching every field without its own entry.
const Wildcard = "*"

// Unlimited depth.
const Unlimited = -1

// Eager is the plan that materializes the whole reachable graph.
const Eager = "*:-1"

type planAST struct {
	Entries []*entryAST `parser:"@@*"`
}

type entryAST struct {
	Path  string `parser:"@Path \":\""`
	Depth int    `parser:"@Int"`
}

var planParser = participle.MustBuild[planAST](
	participle.Lexer(lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Int", Pattern: `[-+]?\d+`},
		{Name: "Path", Pattern: `\*|[a-zA-Z_@][\w.@]*`},
		{Name: "Colon", Pattern: `:`},
		{Name: "Whitespace", Pattern: `[ \r\n\t]+`},
	})),
	participle.Elide("Whitespace"),
)

// Plan maps field paths to fetch depth.
type Plan struct {
	depths map[string]int
}

// Default is the lazy plan: nothing beyond the requested records.
func Default() Plan {
	return Plan{depths: map[string]int{Wildcard: 0}}
}

// Parse reads a space separated list of path:depth entries. The empty string
// yields the default plan.
func Parse(s string) (Plan, error) {
	if strings.TrimSpace(s) == "" {
		return Default(), nil
	}
	ast, err := planParser.ParseString("fetchplan", s)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: fetch plan %q: %v", models.ErrInvalidQuery, s, err)
	}
	p := Plan{depths: make(map[string]int, len(ast.Entries))}
	for _, e := range ast.Entries {
		if e.Depth < Unlimited {
			return Plan{}, fmt.Errorf("%w: fetch plan %q: depth %d below -1", models.ErrInvalidQuery, s, e.Depth)
		}
		p.depths[e.Path] = e.Depth
	}
	return p, nil
}

// MustParse panics on malformed input.
func MustParse(s string) Plan {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Depth returns the configured depth for field, falling back to the wildcard
// entry and then to zero.
func (p Plan) Depth(field string) int {
	if d, ok := p.depths[field]; ok {
		return d
	}
	if d, ok := p.depths[Wildcard]; ok {
		return d
	}
	return 0
}

// Eager reports whether field is fetched along with its owner.
func (p Plan) Eager(field string) bool {
	return p.Depth(field) != 0
}

// IsDefault reports whether the plan fetches nothing beyond the root.
func (p Plan) IsDefault() bool {
	for _, d := range p.depths {
		if d != 0 {
			return false
		}
	}
	return true
}

// Unbounded reports whether the wildcard depth is unlimited.
func (p Plan) Unbounded() bool {
	d, ok := p.depths[Wildcard]
	return ok && d == Unlimited
}

// Descend returns the plan that applies one level below the root. Entries
// with unlimited depth stay unlimited.
func (p Plan) Descend() Plan {
	next := Plan{depths: make(map[string]int, len(p.depths))}
	for k, d := range p.depths {
		switch {
		case d == Unlimited:
			next.depths[k] = Unlimited
		case d > 0:
			next.depths[k] = d - 1
		default:
			next.depths[k] = 0
		}
	}
	return next
}

func (p Plan) String() string {
	keys := make([]string, 0, len(p.depths))
	for k := range p.depths {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == Wildcard {
			return true
		}
		if keys[j] == Wildcard {
			return false
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+strconv.Itoa(p.depths[k]))
	}
	return strings.Join(parts, " ")
}
