// Package catalog holds the read-only description of the tables the agent
// may query. A Catalog is loaded once at startup and never mutated; every
// accessor hands out copies so callers cannot change it behind other readers.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"db-agent-be/pkg/apperrors"

	"gopkg.in/yaml.v3"
)

type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	PrimaryKey  bool   `yaml:"primary_key" json:"primary_key,omitempty"`
	ForeignKey  string `yaml:"foreign_key" json:"foreign_key,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns"`
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// DescriptiveColumns returns the columns that are neither primary nor foreign
// keys, i.e. the ones a person would want to read (names, codes, models).
func (t Table) DescriptiveColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.PrimaryKey || c.ForeignKey != "" {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

func (t Table) clone() Table {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	t.Columns = cols
	return t
}

type document struct {
	Tables []Table `yaml:"tables"`
}

type Catalog struct {
	tables []Table
	index  map[string]int
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Catalog from a YAML document of the form
// `tables: [{name, description, columns: [{name, type, ...}]}]`.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(doc.Tables)
}

// New validates the table definitions and freezes them into a Catalog.
func New(tables []Table) (*Catalog, error) {
	c := &Catalog{
		tables: make([]Table, 0, len(tables)),
		index:  make(map[string]int, len(tables)),
	}

	for _, t := range tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog: table without a name")
		}
		key := strings.ToLower(name)
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate table %q", name)
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("catalog: table %q has no columns", name)
		}
		for _, col := range t.Columns {
			if strings.TrimSpace(col.Name) == "" {
				return nil, fmt.Errorf("catalog: table %q has a column without a name", name)
			}
		}

		t.Name = name
		c.index[key] = len(c.tables)
		c.tables = append(c.tables, t.clone())
	}

	return c, nil
}

// Names lists the table names in the order they were declared.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tables))
	for i, t := range c.tables {
		names[i] = t.Name
	}
	return names
}

// Tables returns a copy of every table definition.
func (c *Catalog) Tables() []Table {
	out := make([]Table, len(c.tables))
	for i, t := range c.tables {
		out[i] = t.clone()
	}
	return out
}

// Table looks a table up by name, ignoring case.
func (c *Catalog) Table(name string) (Table, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Table{}, false
	}
	return c.tables[i].clone(), true
}

// Describe resolves a table or returns a lookup error that carries the
// closest table name when one is similar enough.
func (c *Catalog) Describe(name string) (Table, error) {
	if t, ok := c.Table(name); ok {
		return t, nil
	}
	suggestion, _ := c.Suggest(name)
	return Table{}, apperrors.NotFound(fmt.Sprintf("Table '%s' not found.", name), suggestion)
}
