package region

import (
	"fmt"
	"reflect"
	"time"
)

// Comparator orders entity versions. Implementations should be comparable
// values (struct or pointer types) so regions can tell whether two
// descriptions use the same comparator.
type Comparator interface {
	Compare(a, b any) int
}

// ComparatorFunc adapts a function. Two ComparatorFuncs are the same comparator
// only if they are the same function value.
type ComparatorFunc func(a, b any) int

func (f ComparatorFunc) Compare(a, b any) int { return f(a, b) }

// Description is the metadata attached to a region at creation.
// Every caller sharing one region must supply an equal Description.
type Description struct {
	Mutable           bool
	Versioned         bool
	VersionComparator Comparator
	KeyType           string
}

func (d Description) String() string {
	cmp := "<nil>"
	if d.VersionComparator != nil {
		cmp = fmt.Sprintf("%T", d.VersionComparator)
	}
	return fmt.Sprintf("{mutable=%t versioned=%t comparator=%s keyType=%s}", d.Mutable, d.Versioned, cmp, d.KeyType)
}

// Diff returns the name of the first field in which d and o differ, or "".
// The check is deliberately strict: comparators must be the identical value.
func (d Description) Diff(o Description) string {
	switch {
	case d.Mutable != o.Mutable:
		return "mutable"
	case d.Versioned != o.Versioned:
		return "versioned"
	case !sameComparator(d.VersionComparator, o.VersionComparator):
		return "versionComparator"
	case d.KeyType != o.KeyType:
		return "keyType"
	}
	return ""
}

// Comparator returns the version comparator, NumericComparator when unset.
func (d Description) Comparator() Comparator {
	if d.VersionComparator == nil {
		return NumericComparator{}
	}
	return d.VersionComparator
}

func sameComparator(a, b Comparator) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ta.Kind() == reflect.Func {
		return va.Pointer() == vb.Pointer()
	}
	return false
}

// NumericComparator orders integer, float, string and time.Time versions.
// Versions round-trip through the item envelope as int64, uint64, float64,
// string or time.Time, so mixed integer widths are compared by value.
type NumericComparator struct{}

func (NumericComparator) Compare(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch {
			case sa < sb:
				return -1
			case sa > sb:
				return 1
			}
			return 0
		}
	}
	na, aok := toNumber(a)
	nb, bok := toNumber(b)
	if !aok || !bok {
		// unknown version shapes are never considered newer
		return 0
	}
	return na.cmp(nb)
}

type number struct {
	neg bool
	u   uint64
	f   float64
	isF bool
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int:
		return fromInt(int64(x)), true
	case int8:
		return fromInt(int64(x)), true
	case int16:
		return fromInt(int64(x)), true
	case int32:
		return fromInt(int64(x)), true
	case int64:
		return fromInt(x), true
	case uint:
		return number{u: uint64(x)}, true
	case uint8:
		return number{u: uint64(x)}, true
	case uint16:
		return number{u: uint64(x)}, true
	case uint32:
		return number{u: uint64(x)}, true
	case uint64:
		return number{u: x}, true
	case float32:
		return number{f: float64(x), isF: true}, true
	case float64:
		return number{f: x, isF: true}, true
	}
	return number{}, false
}

func fromInt(x int64) number {
	if x < 0 {
		return number{neg: true, u: uint64(-(x + 1)) + 1}
	}
	return number{u: uint64(x)}
}

func (n number) float() float64 {
	if n.isF {
		return n.f
	}
	if n.neg {
		return -float64(n.u)
	}
	return float64(n.u)
}

func (n number) cmp(o number) int {
	if n.isF || o.isF {
		a, b := n.float(), o.float()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	switch {
	case n.neg && !o.neg:
		return -1
	case !n.neg && o.neg:
		return 1
	case n.neg: // both negative: larger magnitude is smaller
		switch {
		case n.u > o.u:
			return -1
		case n.u < o.u:
			return 1
		}
		return 0
	default:
		switch {
		case n.u < o.u:
			return -1
		case n.u > o.u:
			return 1
		}
		return 0
	}
}
