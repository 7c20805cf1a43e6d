// Package stats turns a MyAnimeList statistics page into typed numeric fields.
package stats

import (
	"strconv"
)

// Field names one of the statistics captured for an anime.
type Field string

// The fixed set of statistics fields. Names match the statistics table columns.
const (
	FieldScore       Field = "score"
	FieldUsers       Field = "users"
	FieldRanked      Field = "ranked"
	FieldPopularity  Field = "popularity"
	FieldMembers     Field = "members"
	FieldFavorites   Field = "favorites"
	FieldWatching    Field = "watching"
	FieldCompleted   Field = "completed"
	FieldOnHold      Field = "onhold"
	FieldDropped     Field = "dropped"
	FieldPlanToWatch Field = "plantowatch"
)

// Fields lists every field in column order.
var Fields = []Field{
	FieldScore,
	FieldUsers,
	FieldRanked,
	FieldPopularity,
	FieldMembers,
	FieldFavorites,
	FieldWatching,
	FieldCompleted,
	FieldOnHold,
	FieldDropped,
	FieldPlanToWatch,
}

// Valid reports whether f belongs to the fixed field set.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

type kind uint8

const (
	kindNull kind = iota
	kindInt
	kindFloat
)

// Value is a single extracted number. The zero Value is null.
type Value struct {
	kind kind
	i    int64
	f    float64
}

// Null returns a value marking a statistic the page reports as not applicable.
func Null() Value {
	return Value{}
}

// Int wraps an integer statistic.
func Int(n int64) Value {
	return Value{kind: kindInt, i: n}
}

// Float wraps a decimal statistic (the score).
func Float(f float64) Value {
	return Value{kind: kindFloat, f: f}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == kindNull
}

// Int64 returns the integer value; ok is false for null or float values.
func (v Value) Int64() (int64, bool) {
	return v.i, v.kind == kindInt
}

// Float64 returns the value as float64; ok is false for null values.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case kindFloat:
		return v.f, true
	case kindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.kind {
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	case kindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return "null"
	}
}

// Stats maps each matched field to its value. Fields never seen on the page are absent.
type Stats map[Field]Value
