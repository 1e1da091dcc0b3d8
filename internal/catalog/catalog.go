// Package catalog is the process-wide registry of databases and tables.
// Tables expose a Schema, a backing Store, a DataLayout, and a primary-key
// SmallBitset.
package catalog

import (
	"github.com/pingcap/errors"

	"github.com/xmutable/engine/internal/bitset"
	"github.com/xmutable/engine/internal/physop"
	"github.com/xmutable/engine/internal/types"
)

// ErrTableNotFound is returned by Database.Table when the name is unknown.
var ErrTableNotFound = errors.New("catalog: table not found")

// ErrDatabaseNotFound is returned by Catalog.Database when the name is unknown.
var ErrDatabaseNotFound = errors.New("catalog: database not found")

// Table is (name, ordered attrs, backing store, data layout, primary-key bitset).
type Table struct {
	Name       string
	Schema     *types.Schema
	Store      physop.Store
	Layout     *physop.DataLayout
	PrimaryKey bitset.SmallBitset
}

// Attr returns the i-th attribute's schema entry; attribute ids are dense
// from 0 and double as bit indices into PrimaryKey.
func (t *Table) Attr(i int) types.Entry { return t.Schema.Entries[i] }

// Database is a named set of Tables.
type Database struct {
	Name   string
	tables map[string]*Table
}

// NewDatabase creates an empty database.
func NewDatabase(name string) *Database {
	return &Database{Name: name, tables: make(map[string]*Table)}
}

// AddTable registers a table (last write wins, mirroring DDL re-creation).
func (d *Database) AddTable(t *Table) {
	d.tables[t.Name] = t
}

// Table looks up a table by exact name.
func (d *Database) Table(name string) (*Table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, errors.Annotatef(ErrTableNotFound, "%s.%s", d.Name, name)
	}
	return t, nil
}

// Tables returns every table in the database, order unspecified.
func (d *Database) Tables() []*Table {
	out := make([]*Table, 0, len(d.tables))
	for _, t := range d.tables {
		out = append(out, t)
	}
	return out
}

// Catalog is the process-wide registry of databases.
type Catalog struct {
	Pool *types.StringPool

	databases map[string]*Database
	inUse     *Database
}

// New creates an empty catalog with its own StringPool.
func New() *Catalog {
	return &Catalog{Pool: types.NewStringPool(), databases: make(map[string]*Database)}
}

// AddDatabase registers db and, if it is the first database added, makes it
// the database in use.
func (c *Catalog) AddDatabase(db *Database) {
	c.databases[db.Name] = db
	if c.inUse == nil {
		c.inUse = db
	}
}

// Use selects the database returned by GetDatabaseInUse.
func (c *Catalog) Use(name string) error {
	db, ok := c.databases[name]
	if !ok {
		return errors.Annotatef(ErrDatabaseNotFound, "%s", name)
	}
	c.inUse = db
	return nil
}

// GetDatabaseInUse returns the currently selected database.
func (c *Catalog) GetDatabaseInUse() (*Database, error) {
	if c.inUse == nil {
		return nil, errors.New("catalog: no database in use")
	}
	return c.inUse, nil
}

// Database looks a database up by name regardless of which is in use.
func (c *Catalog) Database(name string) (*Database, error) {
	db, ok := c.databases[name]
	if !ok {
		return nil, errors.Annotatef(ErrDatabaseNotFound, "%s", name)
	}
	return db, nil
}
