package pagefetch

import (
	"database/sql"

	"github.com/cockroachdb/recon/scalar"
	"github.com/jackc/pgx/v5"
)

type rows interface {
	Err() error
	Next() bool
	Values() ([]scalar.Value, error)
	Close()
}

type pgRows struct {
	pgx.Rows
}

// Values decodes with the pgx type map, so every column arrives as a native
// Go value.
func (r *pgRows) Values() ([]scalar.Value, error) {
	vals, err := r.Rows.Values()
	if err != nil {
		return nil, err
	}
	ret := make([]scalar.Value, len(vals))
	for i, v := range vals {
		ret[i] = scalar.Normalize(v)
	}
	return ret, nil
}

type sqlRows struct {
	*sql.Rows
	colTypes []*sql.ColumnType
}

func (r *sqlRows) Values() ([]scalar.Value, error) {
	dest := make([]any, len(r.colTypes))
	ptrs := make([]any, len(dest))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := r.Rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	ret := make([]scalar.Value, len(dest))
	for i, v := range dest {
		ret[i] = scalar.NormalizeTyped(v, r.colTypes[i].DatabaseTypeName())
	}
	return ret, nil
}

func (r *sqlRows) Close() {
	_ = r.Rows.Close()
}
