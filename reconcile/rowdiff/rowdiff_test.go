package rowdiff

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/cockroachdb/recon/scalar"
	"github.com/stretchr/testify/require"
)

func TestDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		var pages [2][]reconbase.Row
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "primary":
				pages[reconbase.Primary] = parseRows(t, d.Input)
				return ""
			case "secondary":
				pages[reconbase.Secondary] = parseRows(t, d.Input)
				return ""
			case "diff":
				table := "t"
				var fields []string
				for _, arg := range d.CmdArgs {
					switch arg.Key {
					case "table":
						table = arg.Vals[0]
					case "fields":
						fields = arg.Vals
					}
				}
				diffs := Diff(
					table,
					fields,
					Index(pages[reconbase.Primary]),
					Index(pages[reconbase.Secondary]),
				)
				return strings.Join(describeSorted(diffs), "\n")
			}
			t.Errorf("unknown command %s", d.Cmd)
			return ""
		})
	})
}

// parseRows reads a whitespace separated table whose first line is the header.
func parseRows(t *testing.T, input string) []reconbase.Row {
	lines := strings.Split(strings.TrimSpace(input), "\n")
	require.NotEmpty(t, lines)
	cols := strings.Fields(lines[0])
	var rows []reconbase.Row
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		require.Len(t, fields, len(cols), "line %q", line)
		row := reconbase.Row{Columns: cols}
		for _, f := range fields {
			row.Vals = append(row.Vals, parseVal(f))
		}
		rows = append(rows, row)
	}
	return rows
}

func parseVal(s string) scalar.Value {
	if s == "NULL" {
		return scalar.Null
	}
	if strings.HasPrefix(s, "'") {
		return scalar.String(strings.Trim(s, "'"))
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return scalar.Int(i)
	}
	if d, _, err := apd.NewFromString(s); err == nil {
		return scalar.Number(d)
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return scalar.Time(ts)
	}
	return scalar.String(s)
}

func describeSorted(diffs []inconsistency.Difference) []string {
	ret := make([]string, len(diffs))
	for i, d := range diffs {
		ret[i] = inconsistency.Describe(d)
	}
	sort.Strings(ret)
	return ret
}

func makeRow(id int64, level int64, gold int64) reconbase.Row {
	return reconbase.Row{
		Columns: []string{"id", "level", "gold"},
		Vals:    []scalar.Value{scalar.Int(id), scalar.Int(level), scalar.Int(gold)},
	}
}

func TestIndex(t *testing.T) {
	p := Index([]reconbase.Row{makeRow(1, 1, 1), makeRow(2, 2, 2), makeRow(1, 9, 9)})
	require.Equal(t, 2, p.Len())
	require.Len(t, p.Duplicates, 1)
	require.Equal(t, "1", p.Duplicates[0].String())
	// The first row with an identity keeps the slot.
	v, ok := p.Rows["1"].Get("level")
	require.True(t, ok)
	require.Equal(t, "1", v.String())

	// An identity repeated many times is marked once.
	p = Index([]reconbase.Row{
		makeRow(2, 1, 1), makeRow(2, 2, 2), makeRow(2, 3, 3), makeRow(3, 1, 1), makeRow(3, 1, 1),
	})
	require.Equal(t, 2, p.Len())
	require.Len(t, p.Duplicates, 2)
	require.Equal(t, "2", p.Duplicates[0].String())
	require.Equal(t, "3", p.Duplicates[1].String())
	require.Equal(t, []string{"duplicate-key t id=2 on secondary", "duplicate-key t id=3 on secondary"},
		describeSorted(Diff("t", []string{"level"}, Index([]reconbase.Row{makeRow(2, 1, 1), makeRow(3, 1, 1)}), p)))

	empty := Index(nil)
	require.Equal(t, 0, empty.Len())
	require.Empty(t, empty.Duplicates)
}

func TestDiffProperties(t *testing.T) {
	fields := []string{"level", "gold"}
	rng := rand.New(rand.NewSource(1))
	var rows []reconbase.Row
	for i := int64(1); i <= 200; i++ {
		rows = append(rows, makeRow(i, rng.Int63n(100), rng.Int63n(10000)))
	}

	t.Run("identical pages have no differences", func(t *testing.T) {
		require.Empty(t, Diff("t", fields, Index(rows), Index(rows)))
	})

	t.Run("rows on one side are missing on the other", func(t *testing.T) {
		diffs := Diff("t", fields, Index(rows), Index(rows[:150]))
		require.Len(t, diffs, 50)
		for _, d := range diffs {
			require.Equal(t, inconsistency.KindMissingOnSecondary, d.Kind())
		}
		diffs = Diff("t", fields, Index(rows[50:]), Index(rows))
		require.Len(t, diffs, 50)
		for _, d := range diffs {
			require.Equal(t, inconsistency.KindMissingOnPrimary, d.Kind())
		}
	})

	t.Run("one mismatch per differing field", func(t *testing.T) {
		changed := make([]reconbase.Row, len(rows))
		copy(changed, rows)
		var expected []string
		for i := 0; i < len(changed); i += 10 {
			r := changed[i]
			nr := makeRow(int64(i+1), 0, 0)
			lvl, _ := r.Get("level")
			gold, _ := r.Get("gold")
			nr.Vals[1] = lvl
			nr.Vals[2] = scalar.Int(-1)
			if i%20 == 0 {
				nr.Vals[1] = scalar.Int(-1)
				expected = append(expected, fmt.Sprintf("field-mismatch t id=%d level: %s != -1", i+1, lvl))
			}
			expected = append(expected, fmt.Sprintf("field-mismatch t id=%d gold: %s != -1", i+1, gold))
			changed[i] = nr
		}
		sort.Strings(expected)
		require.Equal(t, expected, describeSorted(Diff("t", fields, Index(rows), Index(changed))))
	})

	t.Run("idempotent", func(t *testing.T) {
		a := describeSorted(Diff("t", fields, Index(rows[:120]), Index(rows[40:])))
		b := describeSorted(Diff("t", fields, Index(rows[:120]), Index(rows[40:])))
		require.Equal(t, a, b)
		require.Len(t, a, 120)
	})
}
