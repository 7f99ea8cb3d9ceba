package tableconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/stretchr/testify/require"
)

const playerConfig = `
tables:
  - name: player
    identity: id
    fields: [level, gold]
  - name: game.guild
    identity: guild_id
    fields: [name]
dialects:
  - product: Firebird
    clause: "OFFSET {offset} ROWS FETCH NEXT {limit} ROWS ONLY"
`

func TestParse(t *testing.T) {
	s, err := Parse(strings.NewReader(playerConfig), "yaml")
	require.NoError(t, err)
	require.Equal(t, []string{"player", "game.guild"}, s.Tables())
	require.Equal(t, []string{"game.guild", "player"}, SortedTables(s))

	spec, err := s.TableSpec("player")
	require.NoError(t, err)
	require.Equal(t, reconbase.TableSpec{
		Name:           "player",
		IdentityField:  "id",
		ComparedFields: []string{"level", "gold"},
	}, spec)

	// Mutating a returned spec does not leak into the source.
	spec.ComparedFields[0] = "xp"
	spec, err = s.TableSpec("player")
	require.NoError(t, err)
	require.Equal(t, "level", spec.ComparedFields[0])

	_, err = s.TableSpec("account")
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "account", cfgErr.Table)

	tmpl, err := s.Catalog().Resolve("firebird")
	require.NoError(t, err)
	require.Equal(t, "OFFSET 4 ROWS FETCH NEXT 2 ROWS ONLY", tmpl.Render(4, 2))
	_, err = s.Catalog().Resolve("MySQL")
	require.NoError(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(playerConfig), 0o644))
	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Tables(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		config   string
		expected string
	}{
		{
			desc:     "no fields",
			config:   "tables:\n  - name: player\n    identity: id\n",
			expected: "Fields",
		},
		{
			desc:     "identity compared",
			config:   "tables:\n  - name: player\n    identity: id\n    fields: [id, gold]\n",
			expected: "identity field id must not be compared",
		},
		{
			desc:     "duplicate table",
			config:   "tables:\n  - {name: a, identity: id, fields: [x]}\n  - {name: a, identity: id, fields: [y]}\n",
			expected: "table configured more than once",
		},
		{
			desc:     "bad quote style",
			config:   "dialects:\n  - {product: x, clause: 'LIMIT {limit} OFFSET {offset}', quote: single}\n",
			expected: "Quote",
		},
		{
			desc:     "bad clause",
			config:   "dialects:\n  - {product: mysql, clause: 'LIMIT {limit}'}\n",
			expected: "must reference {offset} and {limit}",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.config), "yaml")
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "%v", err)
			require.Contains(t, err.Error(), tc.expected)
		})
	}
}

func TestValidateSpec(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		spec     reconbase.TableSpec
		expected string
	}{
		{
			desc: "valid",
			spec: reconbase.TableSpec{Name: "t", IdentityField: "id", ComparedFields: []string{"a"}},
		},
		{
			desc:     "no name",
			spec:     reconbase.TableSpec{IdentityField: "id", ComparedFields: []string{"a"}},
			expected: "table name is empty",
		},
		{
			desc:     "no identity",
			spec:     reconbase.TableSpec{Name: "t", ComparedFields: []string{"a"}},
			expected: "identity field is empty",
		},
		{
			desc:     "no fields",
			spec:     reconbase.TableSpec{Name: "t", IdentityField: "id"},
			expected: "no fields to compare",
		},
		{
			desc:     "repeated field",
			spec:     reconbase.TableSpec{Name: "t", IdentityField: "id", ComparedFields: []string{"a", "a"}},
			expected: "field a listed more than once",
		},
		{
			desc:     "blank field",
			spec:     reconbase.TableSpec{Name: "t", IdentityField: "id", ComparedFields: []string{" "}},
			expected: "compared field name is empty",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			err := ValidateSpec(tc.spec)
			if tc.expected == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.expected)
		})
	}
}

func TestFilter(t *testing.T) {
	tables := []string{"player", "game.guild", "game.player", "audit.log"}
	for _, tc := range []struct {
		desc     string
		config   FilterConfig
		expected []string
	}{
		{
			desc:     "default",
			config:   DefaultFilterConfig(),
			expected: tables,
		},
		{
			desc:     "table filter",
			config:   FilterConfig{SchemaFilter: DefaultFilterString, TableFilter: "^player$"},
			expected: []string{"player", "game.player"},
		},
		{
			desc:     "schema filter",
			config:   FilterConfig{SchemaFilter: "^game$", TableFilter: DefaultFilterString},
			expected: []string{"game.guild", "game.player"},
		},
		{
			desc:     "unqualified names have an empty schema",
			config:   FilterConfig{SchemaFilter: "^$", TableFilter: DefaultFilterString},
			expected: []string{"player"},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			ret, err := Filter(tc.config, tables)
			require.NoError(t, err)
			require.Equal(t, tc.expected, ret)
		})
	}

	_, err := Filter(FilterConfig{SchemaFilter: "(", TableFilter: DefaultFilterString}, tables)
	require.Error(t, err)
}
