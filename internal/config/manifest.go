package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cutover/internal/domain"
)

// ManifestTable describes one migrated table in the table manifest file.
type ManifestTable struct {
	Table          string   `yaml:"table"`
	TargetLocation string   `yaml:"target_location"`
	TimeColumn     string   `yaml:"time_column"`
	KeyColumn      string   `yaml:"key_column"`
	CriticalFields []string `yaml:"critical_fields"`
}

// TableManifest is the operator-maintained list of tables participating in
// the migration, loaded from YAML.
type TableManifest struct {
	Tables []ManifestTable `yaml:"tables"`
}

// LoadTableManifest reads and validates the manifest at path.
func LoadTableManifest(path string) (*TableManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table manifest %s: %w", path, err)
	}
	var m TableManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse table manifest %s: %w", path, err)
	}
	if len(m.Tables) == 0 {
		return nil, fmt.Errorf("table manifest %s lists no tables", path)
	}
	seen := make(map[string]bool, len(m.Tables))
	for _, t := range m.Tables {
		if t.Table == "" {
			return nil, fmt.Errorf("table manifest %s: entry with empty table name", path)
		}
		if seen[t.Table] {
			return nil, fmt.Errorf("table manifest %s: duplicate table %q", path, t.Table)
		}
		seen[t.Table] = true
	}
	return &m, nil
}

// Find returns the manifest entry for the table, if present.
func (m *TableManifest) Find(table string) (*ManifestTable, bool) {
	for i := range m.Tables {
		if m.Tables[i].Table == table {
			return &m.Tables[i], true
		}
	}
	return nil, false
}

// Specs builds one validation spec per manifest table over the given range.
func (m *TableManifest) Specs(r domain.TimeRange) []domain.TableSpec {
	specs := make([]domain.TableSpec, len(m.Tables))
	for i, t := range m.Tables {
		specs[i] = t.Spec(r)
	}
	return specs
}

// Spec builds the validation spec for this table over the given range. The
// target location defaults to the source table name.
func (t ManifestTable) Spec(r domain.TimeRange) domain.TableSpec {
	target := t.TargetLocation
	if target == "" {
		target = t.Table
	}
	return domain.TableSpec{
		Table:          t.Table,
		TargetLocation: target,
		TimeColumn:     t.TimeColumn,
		CriticalFields: t.CriticalFields,
		Range:          r,
	}
}
