// Package checksum computes order-independent aggregate hashes over record
// projections, so the same data produces the same checksum on both backends
// regardless of scan order.
package checksum

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"cutover/internal/domain"
)

// Record hashes one record's normalized projection: the key followed by its
// fields in sorted order. Identical records always produce identical hashes.
func Record(rec domain.Record) uint64 {
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(rec.Key)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(rec.Fields[name])
	}
	return xxhash.Sum64String(b.String())
}

// Aggregate combines per-record hashes into one range checksum. Wrapping
// addition is commutative, so the result is independent of record order.
func Aggregate(records []domain.Record) uint64 {
	var sum uint64
	for _, rec := range records {
		sum += Record(rec)
	}
	return sum
}
