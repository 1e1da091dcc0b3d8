package cardinality

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/xmutable/engine/internal/ast"
	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cnf"
	"github.com/xmutable/engine/internal/querygraph"
)

// InjectionModel carries the set of relation names participating together
// with the size settled for that set when the model was built: the catalog's
// recorded size, or the cartesian fallback where the catalog has none.
type InjectionModel struct {
	Relations []string // sorted, deduplicated
	Card      uint64
}

func (m InjectionModel) Cardinality() uint64 { return m.Card }

func relationKey(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func mergeRelations(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, n := range a {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range b {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// InjectionEntry is one {relations, size} record of the JSON catalog. The
// optional free-text note field is accepted and ignored, so fixtures can
// carry provenance comments without failing to parse.
type InjectionEntry struct {
	Relations []string `json:"relations"`
	Size      uint64   `json:"size"`
	Note      string   `json:"note,omitempty"`
}

// InjectionCatalog is the on-disk JSON shape: a map from database
// name to that database's relation-set size entries. A database key that
// does not match the estimator's configured database is a silent cartesian
// fallback, never an error.
type InjectionCatalog map[string][]InjectionEntry

// InjectionEstimator implements Estimator by consulting a relation-set ->
// size map parsed from a JSON catalog. Any lookup miss, or a catalog
// that carries no entry list for the configured database, falls back to the
// cartesian rule.
type InjectionEstimator struct {
	Database string
	sizes    map[string]uint64
	loaded   bool // false if the catalog had no entries for Database
}

// NewInjectionEstimator constructs an estimator for database db backed by
// the parsed catalog; loading failures are the caller's concern via
// LoadInjectionCatalog, not this constructor.
func NewInjectionEstimator(db string, catalog InjectionCatalog) *InjectionEstimator {
	e := &InjectionEstimator{Database: db}
	entries, ok := catalog[db]
	if !ok {
		return e // loaded stays false: every relation-set lookup misses
	}
	e.loaded = true
	e.sizes = make(map[string]uint64, len(entries))
	for _, s := range entries {
		e.sizes[relationKey(s.Relations)] = s.Size
	}
	return e
}

// LoadInjectionCatalog reads a JSON injection catalog from path. If the
// file does not look like plain JSON it is transparently snappy-decoded
// first, so a pre-warmed cache written by SaveCompressedInjectionCatalog
// can be read back without the caller needing to know which form is on
// disk.
func LoadInjectionCatalog(path string) (InjectionCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cardinality: reading injection catalog")
	}
	if !looksPlainJSON(raw) {
		decoded, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, errors.Wrap(err, "cardinality: decompressing injection catalog")
		}
		raw = decoded
	}
	var cat InjectionCatalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return nil, errors.Wrap(err, "cardinality: parsing injection catalog")
	}
	return cat, nil
}

// SaveCompressedInjectionCatalog writes cat to path snappy-compressed, for
// reuse as a fast-loading cache of a larger hand-authored catalog.
func SaveCompressedInjectionCatalog(path string, cat InjectionCatalog) error {
	raw, err := json.Marshal(cat)
	if err != nil {
		return errors.Wrap(err, "cardinality: marshaling injection catalog")
	}
	compressed := snappy.Encode(nil, raw)
	return errors.Wrap(os.WriteFile(path, compressed, 0o644), "cardinality: writing compressed injection catalog")
}

// A plain catalog always starts with '{'; a snappy block starts with a
// varint length, never '{' for any realistically-sized payload.
func looksPlainJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (e *InjectionEstimator) EstimateScan(g *querygraph.QueryGraph, s bitset.SmallBitset) DataModel {
	src := sourceAt(g, s)
	if src == nil {
		return InjectionModel{Card: 0}
	}
	names := []string{src.Alias}
	if e.loaded {
		if sz, ok := e.sizes[relationKey(names)]; ok {
			return InjectionModel{Relations: names, Card: sz}
		}
	}
	return InjectionModel{Relations: names, Card: baseCardinality(src)}
}

func (e *InjectionEstimator) EstimateFilter(g *querygraph.QueryGraph, model DataModel, c cnf.CNF) DataModel {
	m := model.(InjectionModel)
	return InjectionModel{Relations: m.Relations, Card: m.Card}
}

func (e *InjectionEstimator) EstimateJoin(g *querygraph.QueryGraph, left, right DataModel, c cnf.CNF) DataModel {
	l, r := left.(InjectionModel), right.(InjectionModel)
	union := mergeRelations(l.Relations, r.Relations)
	if e.loaded {
		if sz, ok := e.sizes[relationKey(union)]; ok {
			return InjectionModel{Relations: union, Card: sz}
		}
	}
	return InjectionModel{Relations: union, Card: saturatingMul(l.Card, r.Card)}
}

func (e *InjectionEstimator) EstimateGrouping(g *querygraph.QueryGraph, model DataModel, groupKeys []ast.Expr) DataModel {
	m := model.(InjectionModel)
	if len(groupKeys) == 0 {
		return InjectionModel{Relations: m.Relations, Card: 1}
	}
	return InjectionModel{Relations: m.Relations, Card: m.Card}
}

func (e *InjectionEstimator) EstimateLimit(model DataModel, limit, offset int64) DataModel {
	m := model.(InjectionModel)
	if limit >= 0 && uint64(limit) < m.Card {
		m.Card = uint64(limit)
	}
	return m
}

func (e *InjectionEstimator) PredictCardinality(model DataModel) uint64 { return model.Cardinality() }
