// Package rowdiff indexes a page of rows by identity and computes the
// differences between the primary and secondary versions of the same page.
// Nothing in this package performs I/O.
package rowdiff

import (
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/cockroachdb/recon/scalar"
)

// IndexedPage is one page of one side keyed by identity.
type IndexedPage struct {
	Rows map[string]reconbase.Row
	// Duplicates holds, once each, the identities that appear more than once
	// in the page.
	Duplicates []scalar.Value
}

func (p IndexedPage) Len() int {
	return len(p.Rows)
}

// Index keys rows by the canonical form of their identity value. The first row
// with a given identity is kept.
func Index(rows []reconbase.Row) IndexedPage {
	p := IndexedPage{Rows: make(map[string]reconbase.Row, len(rows))}
	var seenDup map[string]struct{}
	for _, row := range rows {
		k := row.ID().Key()
		if _, ok := p.Rows[k]; !ok {
			p.Rows[k] = row
			continue
		}
		if _, ok := seenDup[k]; ok {
			continue
		}
		if seenDup == nil {
			seenDup = make(map[string]struct{})
		}
		seenDup[k] = struct{}{}
		p.Duplicates = append(p.Duplicates, row.ID())
	}
	return p
}

// Diff returns the differences between two indexed versions of the same page.
// The order of the result is unspecified.
func Diff(
	table string, comparedFields []string, primary IndexedPage, secondary IndexedPage,
) []inconsistency.Difference {
	var ret []inconsistency.Difference
	for k, pRow := range primary.Rows {
		ref := inconsistency.RowRef{Table: table, ID: pRow.ID()}
		sRow, ok := secondary.Rows[k]
		if !ok {
			ret = append(ret, inconsistency.MissingOnSecondary{RowRef: ref})
			continue
		}
		for _, field := range comparedFields {
			pVal, _ := pRow.Get(field)
			sVal, _ := sRow.Get(field)
			if !scalar.Equal(pVal, sVal) {
				ret = append(ret, inconsistency.FieldMismatch{
					RowRef:         ref,
					Field:          field,
					PrimaryValue:   pVal,
					SecondaryValue: sVal,
				})
			}
		}
	}
	for k, sRow := range secondary.Rows {
		if _, ok := primary.Rows[k]; !ok {
			ret = append(ret, inconsistency.MissingOnPrimary{
				RowRef: inconsistency.RowRef{Table: table, ID: sRow.ID()},
			})
		}
	}
	for _, side := range reconbase.Sides {
		page := primary
		if side == reconbase.Secondary {
			page = secondary
		}
		for _, id := range page.Duplicates {
			ret = append(ret, inconsistency.DuplicateKey{
				RowRef: inconsistency.RowRef{Table: table, ID: id},
				Side:   side,
			})
		}
	}
	return ret
}
