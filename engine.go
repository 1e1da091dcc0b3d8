// Package engine is the top-level entry point of the query engine: it owns
// the catalog, the configured plan enumerator and cardinality estimator,
// and drives a select statement through the full pipeline: query graph,
// plan enumeration, plan construction, execution.
package engine

import (
	"github.com/pkg/errors"

	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/cardinality"
	"github.com/xmutable/engine/internal/catalog"
	"github.com/xmutable/engine/internal/engineconf"
	"github.com/xmutable/engine/internal/enumerator"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/types"
	"github.com/xmutable/engine/internal/xlog"
)

// ErrUnknownEstimator is returned by New for an estimator name other than
// Cartesian or Injection.
var ErrUnknownEstimator = errors.New("engine: unknown cardinality estimator")

// ErrUnsupportedFeature marks a statement shape the engine recognizes but
// does not execute.
var ErrUnsupportedFeature = errors.New("engine: unsupported feature")

// Engine executes one query at a time against its catalog; it is not safe
// for concurrent use.
type Engine struct {
	Catalog *catalog.Catalog
	Config  *engineconf.Config

	enum enumerator.Enumerator
	est  cardinality.Estimator
}

// New builds an engine over cat with the enumerator and estimator cfg
// names. A nil cfg selects the defaults.
func New(cat *catalog.Catalog, cfg *engineconf.Config) (*Engine, error) {
	if cfg == nil {
		cfg = engineconf.Default()
	}
	xlog.SetLevel(cfg.LogLevel)

	enum, err := enumerator.ByName(cfg.PlanEnumerator)
	if err != nil {
		return nil, err
	}

	var est cardinality.Estimator
	switch cfg.CardinalityEstimator {
	case "Cartesian":
		est = cardinality.NewCartesianEstimator()
	case "Injection":
		var injected cardinality.InjectionCatalog
		if cfg.InjectionCatalogPath != "" {
			injected, err = cardinality.LoadInjectionCatalog(cfg.InjectionCatalogPath)
			if err != nil {
				return nil, err
			}
		}
		est = cardinality.NewInjectionEstimator(cfg.Database, injected)
	default:
		return nil, errors.Wrap(ErrUnknownEstimator, cfg.CardinalityEstimator)
	}

	xlog.Engine.Infof("engine ready: enumerator=%s estimator=%s", enum.Name(), cfg.CardinalityEstimator)
	return &Engine{Catalog: cat, Config: cfg, enum: enum, est: est}, nil
}

// CreateTable registers a table with an in-memory row store in the named
// database, creating the database on first use. entries become the table's
// attributes in order; pk is the primary-key attribute bitset.
func (e *Engine) CreateTable(dbName, tableName string, entries []types.Entry, pk bitset.SmallBitset) (*catalog.Table, error) {
	db, err := e.Catalog.Database(dbName)
	if err != nil {
		db = catalog.NewDatabase(dbName)
		e.Catalog.AddDatabase(db)
	}
	schema := types.NewSchema()
	for _, entry := range entries {
		if err := schema.AddEntry(entry); err != nil {
			return nil, err
		}
	}
	store := physop.NewMemRowStore(schema)
	tbl := &catalog.Table{
		Name:       tableName,
		Schema:     schema,
		Store:      store,
		Layout:     store.Linearization(),
		PrimaryKey: pk,
	}
	db.AddTable(tbl)
	return tbl, nil
}

// Insert appends one row of values (nil for NULL) to tbl's store.
func Insert(tbl *catalog.Table, values ...*physop.Value) error {
	if len(values) != tbl.Schema.NumEntries() {
		return errors.Errorf("engine: insert arity %d, table %s has %d attributes", len(values), tbl.Name, tbl.Schema.NumEntries())
	}
	t := physop.NewTuple(tbl.Schema)
	for i, v := range values {
		if v != nil {
			t.Set(i, *v)
		}
	}
	return tbl.Store.Append(t)
}
