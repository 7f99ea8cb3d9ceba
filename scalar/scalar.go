package scalar

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Kind is the shared representation a driver value is normalized into.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindTime
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindTime:
		return "timestamp"
	case KindString:
		return "string"
	}
	return "unknown"
}

// nullKey is the identity key of a NULL value. It cannot collide with the text
// form of any other value.
const nullKey = "\x00NULL"

// Value is a normalized scalar. The zero Value is NULL.
type Value struct {
	kind Kind
	b    bool
	num  *apd.Decimal
	t    time.Time
	// s caches the canonical text of the value.
	s string
}

// Null is the NULL value.
var Null = Value{}

func Bool(b bool) Value {
	s := "false"
	if b {
		s = "true"
	}
	return Value{kind: KindBool, b: b, s: s}
}

func Int(i int64) Value {
	return Number(apd.New(i, 0))
}

// Number wraps a decimal. A nil decimal is NULL.
func Number(d *apd.Decimal) Value {
	if d == nil {
		return Null
	}
	return Value{kind: KindNumber, num: d, s: decimalText(d)}
}

// Time normalizes t to UTC at microsecond precision, which is the finest
// precision shared by the supported databases.
func Time(t time.Time) Value {
	t = t.UTC().Truncate(time.Microsecond)
	return Value{kind: KindTime, t: t, s: t.Format(time.RFC3339Nano)}
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// String returns the canonical text of the value, or NULL.
func (v Value) String() string {
	if v.kind == KindNull {
		return "NULL"
	}
	return v.s
}

// Key returns the text a value is matched by when used as a row identity.
// Numbers key by their reduced decimal text, so 7, 7.0 and "7" share a key.
func (v Value) Key() string {
	if v.kind == KindNull {
		return nullKey
	}
	return v.s
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if v.num.Form == apd.Finite {
			return []byte(v.s), nil
		}
	}
	return json.Marshal(v.s)
}

func decimalText(d *apd.Decimal) string {
	if d.Form != apd.Finite {
		return d.Text('f')
	}
	var r apd.Decimal
	r.Reduce(d)
	if r.IsZero() {
		r.Exponent = 0
		r.Negative = false
	}
	return r.Text('f')
}

func parseDecimal(s string) (*apd.Decimal, bool) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return d, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "y", "yes":
		return true, true
	case "f", "false", "0", "n", "no":
		return false, true
	}
	return false, false
}
