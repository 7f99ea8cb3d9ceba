package scalar

import "github.com/cockroachdb/apd/v3"

// Equal reports whether two normalized values are equal. Two NULLs are equal;
// NULL never equals a non-NULL value. Values of different kinds are equal only
// if one can be read as the other's kind, e.g. the string "500" and the number
// 500, or true and 1. Anything else is unequal.
func Equal(a, b Value) bool {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == b.kind
	}
	if a.kind != b.kind {
		if c, ok := as(b, a.kind); ok {
			b = c
		} else if c, ok := as(a, b.kind); ok {
			a = c
		} else {
			return false
		}
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return decimalEqual(a.num, b.num)
	case KindTime:
		return a.t.Equal(b.t)
	case KindString:
		return a.s == b.s
	}
	return false
}

// as reads v as kind k, if there is a lossless way to do so.
func as(v Value, k Kind) (Value, bool) {
	switch k {
	case KindNumber:
		switch v.kind {
		case KindString:
			if d, ok := parseDecimal(v.s); ok {
				return Number(d), true
			}
		case KindBool:
			if v.b {
				return Int(1), true
			}
			return Int(0), true
		}
	case KindBool:
		if v.kind == KindString {
			if b, ok := parseBool(v.s); ok {
				return Bool(b), true
			}
		}
	case KindTime:
		if v.kind == KindString {
			if t, ok := parseTime(v.s); ok {
				return Time(t), true
			}
		}
	}
	return Value{}, false
}

func isNaN(d *apd.Decimal) bool {
	return d.Form == apd.NaN || d.Form == apd.NaNSignaling
}

func decimalEqual(a, b *apd.Decimal) bool {
	if isNaN(a) || isNaN(b) {
		return isNaN(a) && isNaN(b)
	}
	return a.Cmp(b) == 0
}
