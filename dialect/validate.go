package dialect

import (
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/parser"
	"github.com/cockroachdb/errors"
	tidbparser "github.com/pingcap/tidb/parser"
	_ "github.com/pingcap/tidb/types/parser_driver"
)

type family int

const (
	familyOther family = iota
	familyPostgres
	familyMySQL
)

func familyOf(product string) family {
	switch key(product) {
	case "postgresql", "postgres", "cockroachdb":
		return familyPostgres
	case "mysql", "mariadb", "tidb":
		return familyMySQL
	}
	return familyOther
}

// Validate checks every template of the catalog. A template must reference
// both placeholders and use a known quote style. Templates of products whose
// grammar is available are rendered into a sample query and parsed.
func (c *Catalog) Validate() error {
	var err error
	for _, product := range c.Products() {
		err = errors.CombineErrors(err, c.templates[key(product)].validate())
	}
	return err
}

func (t Template) validate() error {
	if strings.TrimSpace(t.Product) == "" {
		return errors.Newf("dialect template with clause %q has no product", t.Clause)
	}
	if !strings.Contains(t.Clause, offsetPlaceholder) || !strings.Contains(t.Clause, limitPlaceholder) {
		return errors.Newf(
			"dialect %s: clause %q must reference %s and %s",
			t.Product,
			t.Clause,
			offsetPlaceholder,
			limitPlaceholder,
		)
	}
	if _, ok := quoteStyles[t.Quote]; !ok {
		return errors.Newf("dialect %s: unknown quote style %q", t.Product, t.Quote)
	}
	sample := t.SelectPage("sample_schema.sample_table", "id", []string{"v"}, 20, 10)
	switch familyOf(t.Product) {
	case familyPostgres:
		if _, err := parser.ParseOne(sample); err != nil {
			return errors.Wrapf(err, "dialect %s: invalid sample query %q", t.Product, sample)
		}
	case familyMySQL:
		if _, err := tidbparser.New().ParseOneStmt(sample, "", ""); err != nil {
			return errors.Wrapf(err, "dialect %s: invalid sample query %q", t.Product, sample)
		}
	}
	return nil
}
