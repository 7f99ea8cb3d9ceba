// Package dialect maps a database product to the pagination clause and the
// identifier quoting it uses.
package dialect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/lexbase"
	"github.com/lib/pq"
)

const (
	offsetPlaceholder = "{offset}"
	limitPlaceholder  = "{limit}"
)

// QuoteStyle is how a product quotes identifiers.
type QuoteStyle string

const (
	// QuoteANSI wraps identifiers in double quotes.
	QuoteANSI QuoteStyle = "ansi"
	// QuotePG is QuoteANSI with the escaping rules of the cockroach lexer.
	QuotePG       QuoteStyle = "pg"
	QuoteBacktick QuoteStyle = "backtick"
	QuoteBracket  QuoteStyle = "bracket"
	// QuoteNone emits identifiers as written. Products that fold unquoted
	// identifiers to upper case use this.
	QuoteNone QuoteStyle = "none"
)

var quoteStyles = map[QuoteStyle]struct{}{
	QuoteANSI:     {},
	QuotePG:       {},
	QuoteBacktick: {},
	QuoteBracket:  {},
	QuoteNone:     {},
}

// Template is the pagination syntax of one database product.
type Template struct {
	Product string
	// Clause is appended to the ordered select, e.g. "LIMIT {limit} OFFSET {offset}".
	Clause string
	Quote  QuoteStyle
}

// Render instantiates the clause for one page.
func (t Template) Render(offset, limit int) string {
	return strings.NewReplacer(
		offsetPlaceholder, strconv.Itoa(offset),
		limitPlaceholder, strconv.Itoa(limit),
	).Replace(t.Clause)
}

// QuoteIdent quotes a single identifier.
func (t Template) QuoteIdent(name string) string {
	switch t.Quote {
	case QuoteANSI:
		return pq.QuoteIdentifier(name)
	case QuotePG:
		return lexbase.EscapeSQLIdent(name)
	case QuoteBacktick:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case QuoteBracket:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return name
}

// QuoteName quotes each dot separated part of a possibly qualified name.
func (t Template) QuoteName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = t.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// SelectPage renders the query for one page of a table, ordered by the
// identity column so that a page covers the same identities on every source.
func (t Template) SelectPage(table, identity string, fields []string, offset, limit int) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(t.QuoteIdent(identity))
	for _, f := range fields {
		sb.WriteString(", ")
		sb.WriteString(t.QuoteIdent(f))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(t.QuoteName(table))
	sb.WriteString(" ORDER BY ")
	sb.WriteString(t.QuoteIdent(identity))
	sb.WriteString(" ASC")
	if clause := t.Render(offset, limit); clause != "" {
		sb.WriteString(" ")
		sb.WriteString(clause)
	}
	return sb.String()
}

// UnsupportedDialectError is returned when a product has no catalog entry.
type UnsupportedDialectError struct {
	Product string
}

func (e *UnsupportedDialectError) Error() string {
	return fmt.Sprintf("unsupported dialect %q", e.Product)
}

// Catalog is an immutable set of templates keyed by lower cased product.
type Catalog struct {
	templates map[string]Template
}

func NewCatalog(templates ...Template) *Catalog {
	c := &Catalog{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		c.templates[key(t.Product)] = t
	}
	return c
}

var defaultTemplates = []Template{
	{Product: "PostgreSQL", Clause: "LIMIT {limit} OFFSET {offset}", Quote: QuotePG},
	{Product: "CockroachDB", Clause: "LIMIT {limit} OFFSET {offset}", Quote: QuotePG},
	{Product: "MySQL", Clause: "LIMIT {offset}, {limit}", Quote: QuoteBacktick},
	{Product: "MariaDB", Clause: "LIMIT {offset}, {limit}", Quote: QuoteBacktick},
	{Product: "TiDB", Clause: "LIMIT {offset}, {limit}", Quote: QuoteBacktick},
	{Product: "ClickHouse", Clause: "LIMIT {limit} OFFSET {offset}", Quote: QuoteBacktick},
	{Product: "Oracle", Clause: "OFFSET {offset} ROWS FETCH NEXT {limit} ROWS ONLY", Quote: QuoteNone},
	{Product: "Microsoft SQL Server", Clause: "OFFSET {offset} ROWS FETCH NEXT {limit} ROWS ONLY", Quote: QuoteBracket},
	{Product: "H2", Clause: "LIMIT {limit} OFFSET {offset}", Quote: QuoteNone},
	{Product: "SQLite", Clause: "LIMIT {limit} OFFSET {offset}", Quote: QuoteANSI},
}

// Default returns the catalog of every built in product.
func Default() *Catalog {
	return NewCatalog(defaultTemplates...)
}

// With returns a copy of the catalog with the given templates added or
// replacing the entries of the same product.
func (c *Catalog) With(templates ...Template) *Catalog {
	ret := NewCatalog()
	for k, t := range c.templates {
		ret.templates[k] = t
	}
	for _, t := range templates {
		ret.templates[key(t.Product)] = t
	}
	return ret
}

// Resolve looks up a product case insensitively.
func (c *Catalog) Resolve(product string) (Template, error) {
	t, ok := c.templates[key(product)]
	if !ok {
		return Template{}, &UnsupportedDialectError{Product: product}
	}
	return t, nil
}

// Products lists the catalog entries in sorted order.
func (c *Catalog) Products() []string {
	ret := make([]string, 0, len(c.templates))
	for _, t := range c.templates {
		ret = append(ret, t.Product)
	}
	sort.Strings(ret)
	return ret
}

func key(product string) string {
	return strings.ToLower(strings.TrimSpace(product))
}
