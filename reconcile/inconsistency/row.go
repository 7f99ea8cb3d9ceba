package inconsistency

import (
	"fmt"

	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/cockroachdb/recon/scalar"
)

type ReportableObject interface{}

// Kind names a type of Difference.
type Kind string

const (
	KindMissingOnSecondary Kind = "missing-on-secondary"
	KindMissingOnPrimary   Kind = "missing-on-primary"
	KindFieldMismatch      Kind = "field-mismatch"
	KindDuplicateKey       Kind = "duplicate-key"
)

// Kinds lists every Kind.
var Kinds = []Kind{KindMissingOnSecondary, KindMissingOnPrimary, KindFieldMismatch, KindDuplicateKey}

// Difference is a single inconsistency found between the two sides.
type Difference interface {
	Kind() Kind
	Ref() RowRef
}

// RowRef identifies a row of a table by its identity value.
type RowRef struct {
	Table string
	ID    scalar.Value
}

func (r RowRef) Ref() RowRef {
	return r
}

// MissingOnSecondary is a row present on the primary only.
type MissingOnSecondary struct {
	RowRef
}

func (MissingOnSecondary) Kind() Kind { return KindMissingOnSecondary }

// MissingOnPrimary is a row present on the secondary only.
type MissingOnPrimary struct {
	RowRef
}

func (MissingOnPrimary) Kind() Kind { return KindMissingOnPrimary }

// FieldMismatch is a compared field whose value differs between the sides.
type FieldMismatch struct {
	RowRef
	Field          string
	PrimaryValue   scalar.Value
	SecondaryValue scalar.Value
}

func (FieldMismatch) Kind() Kind { return KindFieldMismatch }

// DuplicateKey is an identity value seen more than once within one page of one side.
type DuplicateKey struct {
	RowRef
	Side reconbase.Side
}

func (DuplicateKey) Kind() Kind { return KindDuplicateKey }

var (
	_ Difference = MissingOnSecondary{}
	_ Difference = MissingOnPrimary{}
	_ Difference = FieldMismatch{}
	_ Difference = DuplicateKey{}
)

// Describe renders a difference on one line.
func Describe(d Difference) string {
	ref := d.Ref()
	s := fmt.Sprintf("%s %s id=%s", d.Kind(), ref.Table, ref.ID)
	switch d := d.(type) {
	case FieldMismatch:
		s += fmt.Sprintf(" %s: %s != %s", d.Field, d.PrimaryValue, d.SecondaryValue)
	case DuplicateKey:
		s += fmt.Sprintf(" on %s", d.Side)
	}
	return s
}

// Record is the flat, serializable form of a Difference.
type Record struct {
	Kind           Kind          `json:"kind"`
	Table          string        `json:"table"`
	ID             scalar.Value  `json:"id"`
	Field          string        `json:"field,omitempty"`
	PrimaryValue   *scalar.Value `json:"primary_value,omitempty"`
	SecondaryValue *scalar.Value `json:"secondary_value,omitempty"`
	Side           string        `json:"side,omitempty"`
}

func ToRecord(d Difference) Record {
	ref := d.Ref()
	r := Record{Kind: d.Kind(), Table: ref.Table, ID: ref.ID}
	switch d := d.(type) {
	case FieldMismatch:
		pv, sv := d.PrimaryValue, d.SecondaryValue
		r.Field = d.Field
		r.PrimaryValue = &pv
		r.SecondaryValue = &sv
	case DuplicateKey:
		r.Side = d.Side.String()
	}
	return r
}
