// Package tsdb implements the TS Store (spec §4.4): time-series schema
// management, per-entity child tables, batched insert, and windowed range
// queries, driven generically off a MetricFamily descriptor rather than
// per-stable bespoke SQL (spec §9 DESIGN NOTES, replacing "polymorphism by
// separate classes per stable with duplicated insert/query logic").
package tsdb

import (
	"fmt"
	"strings"
)

// FieldKind is the TDengine column type a field maps to.
type FieldKind string

const (
	FieldDouble FieldKind = "DOUBLE"
	FieldBigint FieldKind = "BIGINT"
	FieldInt    FieldKind = "INT"
	FieldBinary FieldKind = "BINARY(64)"
)

// Field describes one numeric (or short string) column of a family.
type Field struct {
	Name string
	Kind FieldKind
}

// MetricFamily is the generic descriptor driving insert/query for one
// stable (spec glossary: "Stable"). Name is the super-table name, Tags
// are the ordered tag columns (always include host_ip or box_id as the
// entity key), Fields are the ordered value columns.
type MetricFamily struct {
	Name   string
	Tags   []Field
	Fields []Field
}

// Families is every metric family the TS Store manages (spec §4.4
// "Schema"), indexed by name for lookup from the HTTP layer's
// comma-separated family-selection query parameters.
var Families = map[string]MetricFamily{
	"cpu": {
		Name: "cpu",
		Tags: []Field{{"host_ip", FieldBinary}},
		Fields: []Field{
			{"usage_percent", FieldDouble}, {"load_avg_1m", FieldDouble}, {"load_avg_5m", FieldDouble},
			{"load_avg_15m", FieldDouble}, {"core_count", FieldInt}, {"core_allocated", FieldInt},
			{"temperature", FieldDouble}, {"voltage", FieldDouble}, {"current", FieldDouble}, {"power", FieldDouble},
		},
	},
	"memory": {
		Name:   "memory",
		Tags:   []Field{{"host_ip", FieldBinary}},
		Fields: []Field{{"total", FieldBigint}, {"used", FieldBigint}, {"free", FieldBigint}, {"usage_percent", FieldDouble}},
	},
	"disk": {
		Name: "disk",
		Tags: []Field{{"host_ip", FieldBinary}, {"device", FieldBinary}, {"mount_point", FieldBinary}},
		Fields: []Field{
			{"total", FieldBigint}, {"used", FieldBigint}, {"free", FieldBigint}, {"usage_percent", FieldDouble},
		},
	},
	"network": {
		Name: "network",
		Tags: []Field{{"host_ip", FieldBinary}, {"interface", FieldBinary}},
		Fields: []Field{
			{"rx_bytes", FieldBigint}, {"tx_bytes", FieldBigint}, {"rx_packets", FieldBigint}, {"tx_packets", FieldBigint},
			{"rx_errors", FieldBigint}, {"tx_errors", FieldBigint}, {"rx_rate", FieldDouble}, {"tx_rate", FieldDouble},
		},
	},
	"gpu": {
		Name: "gpu",
		Tags: []Field{{"host_ip", FieldBinary}, {"gpu_index", FieldInt}, {"gpu_name", FieldBinary}},
		Fields: []Field{
			{"compute_usage", FieldDouble}, {"mem_usage", FieldDouble}, {"mem_used", FieldBigint},
			{"mem_total", FieldBigint}, {"temperature", FieldDouble}, {"power", FieldDouble},
		},
	},
	"container": {
		Name:   "container",
		Tags:   []Field{{"host_ip", FieldBinary}, {"container_id", FieldBinary}},
		Fields: []Field{{"name", FieldBinary}, {"cpu_percent", FieldDouble}, {"mem_usage", FieldBigint}, {"mem_limit", FieldBigint}},
	},
	"sensor": {
		Name:   "sensor",
		Tags:   []Field{{"host_ip", FieldBinary}, {"name", FieldBinary}},
		Fields: []Field{{"value", FieldDouble}},
	},
	"bmc_fan_super": {
		Name:   "bmc_fan_super",
		Tags:   []Field{{"box_id", FieldInt}, {"fan_seq", FieldInt}},
		Fields: []Field{{"speed", FieldBigint}, {"alarm_type", FieldInt}, {"work_mode", FieldInt}},
	},
	"bmc_sensor_super": {
		Name: "bmc_sensor_super",
		Tags: []Field{
			{"box_id", FieldInt}, {"slot_id", FieldInt}, {"sensor_seq", FieldInt},
			{"sensor_name", FieldBinary}, {"sensor_type", FieldInt}, {"host_ip", FieldBinary},
		},
		Fields: []Field{{"sensor_value", FieldDouble}, {"alarm_type", FieldInt}},
	},
}

// CreateStableSQL returns the idempotent DDL for the family's super-table.
func (f MetricFamily) CreateStableSQL() string {
	var cols, tags []string
	cols = append(cols, "ts TIMESTAMP")
	for _, fl := range f.Fields {
		cols = append(cols, fmt.Sprintf("%s %s", fl.Name, fl.Kind))
	}
	for _, tg := range f.Tags {
		tags = append(tags, fmt.Sprintf("%s %s", tg.Name, tg.Kind))
	}
	return fmt.Sprintf("CREATE STABLE IF NOT EXISTS %s (%s) TAGS (%s)", f.Name, strings.Join(cols, ", "), strings.Join(tags, ", "))
}

// sanitizeTableName replaces tag-separator characters with underscores
// so a joined tag tuple becomes a legal child table identifier.
func sanitizeTableName(parts ...string) string {
	replacer := strings.NewReplacer("/", "_", "-", "_", ".", "_", ":", "_", " ", "_")
	sanitized := make([]string, len(parts))
	for i, p := range parts {
		sanitized[i] = replacer.Replace(p)
	}
	return strings.Join(sanitized, "_")
}

// ChildTableName derives the per-entity child table name for a family
// given its tag values in the same order as f.Tags.
func (f MetricFamily) ChildTableName(tagValues ...string) string {
	return f.Name + "_" + sanitizeTableName(tagValues...)
}

// InsertSQL builds the auto-create-on-insert statement TDengine uses to
// lazily materialize a child table on first insert for an entity (spec
// §4.4 "created lazily on first insert"): `INSERT INTO child USING stable
// TAGS (...) VALUES (...)`.
func (f MetricFamily) InsertSQL(childTable string) string {
	var fieldCols []string
	fieldCols = append(fieldCols, "ts")
	for _, fl := range f.Fields {
		fieldCols = append(fieldCols, fl.Name)
	}

	var tagPlaceholders, fieldPlaceholders []string
	for range f.Tags {
		tagPlaceholders = append(tagPlaceholders, "?")
	}
	for range fieldCols {
		fieldPlaceholders = append(fieldPlaceholders, "?")
	}

	return fmt.Sprintf(
		"INSERT INTO %s USING %s TAGS (%s) VALUES (%s)",
		childTable, f.Name, strings.Join(tagPlaceholders, ", "), strings.Join(fieldPlaceholders, ", "),
	)
}
