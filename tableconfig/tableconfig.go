// Package tableconfig holds which tables are reconciled and which of their
// fields are compared.
package tableconfig

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/dialect"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ConfigurationError is a table or dialect configuration that cannot be used.
// It is always raised before any I/O.
type ConfigurationError struct {
	Table  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration for table %q: %s", e.Table, e.Reason)
}

// Source supplies table specs.
type Source interface {
	// TableSpec returns a *ConfigurationError for unknown tables.
	TableSpec(name string) (reconbase.TableSpec, error)
	// Tables lists every configured table.
	Tables() []string
}

type TableConfig struct {
	Name     string   `mapstructure:"name" validate:"required"`
	Identity string   `mapstructure:"identity" validate:"required"`
	Fields   []string `mapstructure:"fields" validate:"required,min=1,dive,required"`
}

type DialectConfig struct {
	Product string `mapstructure:"product" validate:"required"`
	Clause  string `mapstructure:"clause" validate:"required"`
	Quote   string `mapstructure:"quote" validate:"omitempty,oneof=ansi pg backtick bracket none"`
}

type Config struct {
	Tables   []TableConfig   `mapstructure:"tables" validate:"dive"`
	Dialects []DialectConfig `mapstructure:"dialects" validate:"dive"`
}

// Static is a Source built once from a Config. It is never mutated, so it can
// be shared by concurrent runs.
type Static struct {
	specs   map[string]reconbase.TableSpec
	order   []string
	catalog *dialect.Catalog
}

var _ Source = (*Static)(nil)

// Load reads a config file. The format follows the file extension.
func Load(path string) (*Static, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading table config %s", path)
	}
	return fromViper(v)
}

// Parse reads a config in the given format, e.g. "yaml".
func Parse(r io.Reader, format string) (*Static, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.Wrap(err, "error reading table config")
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Static, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error decoding table config")
	}
	return New(cfg)
}

func New(cfg Config) (*Static, error) {
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	s := &Static{specs: make(map[string]reconbase.TableSpec, len(cfg.Tables))}
	for _, tc := range cfg.Tables {
		spec := reconbase.TableSpec{
			Name:           tc.Name,
			IdentityField:  tc.Identity,
			ComparedFields: append([]string(nil), tc.Fields...),
		}
		if err := ValidateSpec(spec); err != nil {
			return nil, err
		}
		if _, ok := s.specs[spec.Name]; ok {
			return nil, &ConfigurationError{Table: spec.Name, Reason: "table configured more than once"}
		}
		s.specs[spec.Name] = spec
		s.order = append(s.order, spec.Name)
	}

	templates := make([]dialect.Template, len(cfg.Dialects))
	for i, dc := range cfg.Dialects {
		quote := dialect.QuoteStyle(dc.Quote)
		if quote == "" {
			quote = dialect.QuoteANSI
		}
		templates[i] = dialect.Template{Product: dc.Product, Clause: dc.Clause, Quote: quote}
	}
	s.catalog = dialect.Default().With(templates...)
	if err := s.catalog.Validate(); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	return s, nil
}

func (s *Static) TableSpec(name string) (reconbase.TableSpec, error) {
	spec, ok := s.specs[name]
	if !ok {
		return reconbase.TableSpec{}, &ConfigurationError{Table: name, Reason: "table is not configured"}
	}
	spec.ComparedFields = append([]string(nil), spec.ComparedFields...)
	return spec, nil
}

func (s *Static) Tables() []string {
	return append([]string(nil), s.order...)
}

// Catalog is the built in dialect catalog with the configured overrides.
func (s *Static) Catalog() *dialect.Catalog {
	return s.catalog
}

// ValidateSpec checks that a spec can be reconciled.
func ValidateSpec(spec reconbase.TableSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return &ConfigurationError{Reason: "table name is empty"}
	}
	if strings.TrimSpace(spec.IdentityField) == "" {
		return &ConfigurationError{Table: spec.Name, Reason: "identity field is empty"}
	}
	if len(spec.ComparedFields) == 0 {
		return &ConfigurationError{Table: spec.Name, Reason: "no fields to compare"}
	}
	seen := make(map[string]struct{}, len(spec.ComparedFields))
	for _, f := range spec.ComparedFields {
		switch {
		case strings.TrimSpace(f) == "":
			return &ConfigurationError{Table: spec.Name, Reason: "compared field name is empty"}
		case f == spec.IdentityField:
			return &ConfigurationError{
				Table:  spec.Name,
				Reason: fmt.Sprintf("identity field %s must not be compared", f),
			}
		}
		if _, ok := seen[f]; ok {
			return &ConfigurationError{Table: spec.Name, Reason: fmt.Sprintf("field %s listed more than once", f)}
		}
		seen[f] = struct{}{}
	}
	return nil
}

// SortedTables is Tables in lexical order.
func SortedTables(s Source) []string {
	ret := s.Tables()
	sort.Strings(ret)
	return ret
}
