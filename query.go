package slcache

import (
	"sort"
	"strconv"
	"time"

	"github.com/unkn0wn-root/slcache/internal/keyutil"
)

// Query describes one cacheable query execution, as produced by the query
// layer.
type Query struct {
	DQL        string
	Parameters map[string]any
	// Lifetime bounds how long a stored result stays valid; <= 0 never expires.
	Lifetime  time.Duration
	ResultSet ResultSetMapping
}

// ResultSetMapping describes the shape of a query result.
type ResultSetMapping struct {
	// RootAlias names the alias of the root entity. Empty selects the only
	// alias that is not a relation.
	RootAlias string
	// AliasMap maps every entity alias to its entity name.
	AliasMap map[string]string
	// RelationMap maps a joined alias to the association field it was
	// fetched through.
	RelationMap map[string]string
	// ParentAliasMap maps a joined alias to its parent alias. Missing entries
	// default to the root.
	ParentAliasMap map[string]string
	// ScalarMappings maps result columns to scalar result names.
	ScalarMappings map[string]string
}

// RootEntity returns the entity name of the root alias.
func (m ResultSetMapping) RootEntity() (string, bool) {
	alias, ok := m.rootAlias()
	if !ok {
		return "", false
	}
	name, ok := m.AliasMap[alias]
	return name, ok && name != ""
}

func (m ResultSetMapping) rootAlias() (string, bool) {
	if m.RootAlias != "" {
		return m.RootAlias, true
	}
	root := ""
	for alias := range m.AliasMap {
		if _, rel := m.RelationMap[alias]; rel {
			continue
		}
		if root != "" {
			return "", false
		}
		root = alias
	}
	return root, root != ""
}

// Relations returns the association fields fetched directly from the root,
// sorted and deduplicated. Deeper joins are not part of the cached shape.
func (m ResultSetMapping) Relations() []string {
	root, _ := m.rootAlias()
	seen := make(map[string]struct{}, len(m.RelationMap))
	out := make([]string, 0, len(m.RelationMap))
	for alias, field := range m.RelationMap {
		if parent, ok := m.ParentAliasMap[alias]; ok && parent != root {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

func (m ResultSetMapping) HasScalars() bool { return len(m.ScalarMappings) > 0 }

func (m ResultSetMapping) shapeHash() string {
	root, _ := m.rootAlias()
	parts := []string{root}
	for _, part := range []map[string]string{m.AliasMap, m.RelationMap, m.ParentAliasMap, m.ScalarMappings} {
		parts = append(parts, strconv.Itoa(len(part)))
		for _, k := range keyutil.SortedKeys(part) {
			parts = append(parts, k, part[k])
		}
	}
	return keyutil.Digest(parts...)
}
