package audit

import (
	"math"
	"reflect"
	"sort"
)

// Diff computes the field-level delta between two snapshots.
//
// Only keys of after are visited: a field removed entirely in after is not
// reported. A key missing from before is compared as nil.
func Diff(before, after Snapshot) ChangeSet {
	if len(after) == 0 {
		return nil
	}

	var changes ChangeSet
	for key, to := range after {
		from := before[key]
		if valuesEqual(from, to) {
			continue
		}
		if changes == nil {
			changes = make(ChangeSet)
		}
		changes[key] = Change{From: cloneValue(from), To: cloneValue(to)}
	}
	return changes
}

// Fields returns the changed field names in sorted order
func (c ChangeSet) Fields() []string {
	fields := make([]string, 0, len(c))
	for k := range c {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// valuesEqual compares by value. Numbers of different Go kinds compare
// numerically so a JSON-decoded float64 equals the int it came from.
// Integers are compared exactly, never through float64.
func valuesEqual(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	na, okA := toNumber(a)
	nb, okB := toNumber(b)
	return okA && okB && na.equal(nb)
}

type numberKind int

const (
	signedNumber numberKind = iota
	unsignedNumber
	floatNumber
)

type number struct {
	kind numberKind
	i    int64
	u    uint64
	f    float64
}

func toNumber(v interface{}) (number, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: signedNumber, i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: unsignedNumber, u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{kind: floatNumber, f: rv.Float()}, true
	}
	return number{}, false
}

func (n number) equal(o number) bool {
	if n.kind > o.kind {
		n, o = o, n
	}
	switch {
	case n.kind == signedNumber && o.kind == signedNumber:
		return n.i == o.i
	case n.kind == unsignedNumber && o.kind == unsignedNumber:
		return n.u == o.u
	case n.kind == signedNumber && o.kind == unsignedNumber:
		return n.i >= 0 && uint64(n.i) == o.u
	case n.kind == floatNumber:
		return n.f == o.f
	}

	// integer against float: only an integral float in range can match
	if o.f != math.Trunc(o.f) {
		return false
	}
	if n.kind == signedNumber {
		return o.f >= -(1<<63) && o.f < 1<<63 && int64(o.f) == n.i
	}
	return o.f >= 0 && o.f < 1<<64 && uint64(o.f) == n.u
}
