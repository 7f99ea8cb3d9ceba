package tableconfig

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

const DefaultFilterString = ".*"

type FilterString = string

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		SchemaFilter: DefaultFilterString,
		TableFilter:  DefaultFilterString,
	}
}

// FilterConfig selects tables by POSIX regular expressions. Names without a
// schema match the schema filter as the empty string.
type FilterConfig struct {
	SchemaFilter FilterString
	TableFilter  FilterString
}

// Filter returns the tables matching cfg, preserving order.
func Filter(cfg FilterConfig, tables []string) ([]string, error) {
	if cfg.SchemaFilter == DefaultFilterString && cfg.TableFilter == DefaultFilterString {
		return tables, nil
	}
	schemaRe, err := regexp.CompilePOSIX(cfg.SchemaFilter)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schema filter %q", cfg.SchemaFilter)
	}
	tableRe, err := regexp.CompilePOSIX(cfg.TableFilter)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid table filter %q", cfg.TableFilter)
	}
	ret := make([]string, 0, len(tables))
	for _, t := range tables {
		if matchesFilter(t, schemaRe, tableRe) {
			ret = append(ret, t)
		}
	}
	return ret, nil
}

func matchesFilter(name string, schemaRe, tableRe *regexp.Regexp) bool {
	schema, table := "", name
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		schema, table = name[:idx], name[idx+1:]
	}
	return schemaRe.MatchString(schema) && tableRe.MatchString(table)
}
