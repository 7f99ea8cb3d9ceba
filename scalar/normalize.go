package scalar

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Normalize converts a value returned by a database driver into a Value.
// Values that have no shared representation fall back to their printed text.
func Normalize(val any) Value {
	switch val := val.(type) {
	case nil:
		return Null
	case Value:
		return val
	case bool:
		return Bool(val)
	case int:
		return Int(int64(val))
	case int8:
		return Int(int64(val))
	case int16:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int64:
		return Int(val)
	case uint:
		return Normalize(uint64(val))
	case uint8:
		return Int(int64(val))
	case uint16:
		return Int(int64(val))
	case uint32:
		return Int(int64(val))
	case uint64:
		d, _, err := apd.NewFromString(strconv.FormatUint(val, 10))
		if err != nil {
			return String(strconv.FormatUint(val, 10))
		}
		return Number(d)
	case float32:
		// Format at 32 bits so 0.1 stays 0.1 rather than its widened binary value.
		return numberFromText(strconv.FormatFloat(float64(val), 'g', -1, 32))
	case float64:
		return numberFromText(strconv.FormatFloat(val, 'g', -1, 64))
	case *apd.Decimal:
		return Number(val)
	case apd.Decimal:
		return Number(&val)
	case pgtype.Numeric:
		return numericValue(val)
	case string:
		return String(val)
	case []byte:
		if val == nil {
			return Null
		}
		return String(string(val))
	case time.Time:
		return Time(val)
	case [16]byte:
		return String(uuid.UUID(val).String())
	case uuid.UUID:
		return String(val.String())
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return String(fmt.Sprint(val))
		}
		return Normalize(dv)
	case fmt.Stringer:
		return String(val.String())
	}
	return String(fmt.Sprint(val))
}

// NormalizeTyped converts a value read through database/sql, where drivers
// using the text protocol hand back []byte for every column. dbType is the
// column's DatabaseTypeName and decides how the bytes are read.
func NormalizeTyped(val any, dbType string) Value {
	var text string
	switch v := val.(type) {
	case []byte:
		if v == nil {
			return Null
		}
		text = string(v)
	case string:
		text = v
	default:
		return Normalize(val)
	}
	switch typeClass(dbType) {
	case classNumber:
		return numberFromText(text)
	case classTime:
		if t, ok := parseTime(text); ok {
			return Time(t)
		}
	case classBool:
		if b, ok := parseBool(text); ok {
			return Bool(b)
		}
	}
	return String(text)
}

type class int

const (
	classText class = iota
	classNumber
	classTime
	classBool
)

func typeClass(dbType string) class {
	typ := strings.ToUpper(strings.TrimSpace(dbType))
	typ = strings.TrimPrefix(typ, "UNSIGNED ")
	if idx := strings.IndexByte(typ, '('); idx >= 0 {
		typ = typ[:idx]
	}
	switch typ {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR",
		"DECIMAL", "NUMERIC", "NUMBER", "FLOAT", "DOUBLE", "REAL",
		"INT2", "INT4", "INT8", "FLOAT4", "FLOAT8":
		return classNumber
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return classTime
	case "BOOL", "BOOLEAN":
		return classBool
	}
	return classText
}

func numberFromText(s string) Value {
	if d, ok := parseDecimal(s); ok {
		return Number(d)
	}
	return String(s)
}

func numericValue(n pgtype.Numeric) Value {
	if !n.Valid {
		return Null
	}
	if n.NaN {
		return Number(&apd.Decimal{Form: apd.NaN})
	}
	switch n.InfinityModifier {
	case pgtype.Infinity:
		return Number(&apd.Decimal{Form: apd.Infinite})
	case pgtype.NegativeInfinity:
		return Number(&apd.Decimal{Form: apd.Infinite, Negative: true})
	}
	if n.Int == nil {
		return Int(0)
	}
	return Number(apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(n.Int), n.Exp))
}
