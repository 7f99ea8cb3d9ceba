package reconbase

import "github.com/cockroachdb/recon/scalar"

// Side identifies one of the two data sources being compared.
type Side int

const (
	Primary Side = iota
	Secondary
)

// Sides lists both sides in the order OrderedConns stores them.
var Sides = [2]Side{Primary, Secondary}

func (s Side) String() string {
	switch s {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	}
	return "unknown"
}

// TableSpec describes which fields of a table are reconciled. It is built once
// per compare run and never mutated.
type TableSpec struct {
	Name           string
	IdentityField  string
	ComparedFields []string
}

// Columns returns the identity field followed by the compared fields, which is
// the column order of every fetched Row.
func (t TableSpec) Columns() []string {
	ret := make([]string, 0, len(t.ComparedFields)+1)
	ret = append(ret, t.IdentityField)
	return append(ret, t.ComparedFields...)
}

// Row is one fetched row. Columns is shared by every row of a page and always
// starts with the identity field.
type Row struct {
	Columns []string
	Vals    []scalar.Value
}

// ID returns the identity value of the row.
func (r Row) ID() scalar.Value {
	if len(r.Vals) == 0 {
		return scalar.Null
	}
	return r.Vals[0]
}

// Get returns the value of the named column.
func (r Row) Get(col string) (scalar.Value, bool) {
	for i, c := range r.Columns {
		if c == col {
			return r.Vals[i], true
		}
	}
	return scalar.Null, false
}
