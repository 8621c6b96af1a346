// Tuple codec round-trip and order-preservation tests.
//
// Every other package in this module depends on these two properties
// holding exactly: unpack(pack(t)) == t, and natural order equals
// lexicographic order of the packed bytes. A bug here is silent and
// corrupts every index built on top of it (spec Β§4.1).
package tuple

import (
	"bytes"
	"math"
	"testing"
	"time"
)

// TestRoundTripScalars verifies unpack(pack(t)) == t for every supported
// element kind in isolation.
func TestRoundTripScalars(t *testing.T) {
	cases := []Element{
		int64(0), int64(-1), int64(1), int64(math.MinInt64), int64(math.MaxInt64),
		int64(-9000000000000000000), int64(9000000000000000000),
		"", "hello", "with\x00null", "unicode: δ½ ε₯½ 🎉",
		[]byte{}, []byte{0x00, 0xFF, 0x01},
		true, false,
		float32(0), float32(-1.5), float32(3.25),
		float64(0), float64(-1.5), float64(3.25), float64(-1e300), float64(1e300),
		Versionstamp{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		IncompleteVersionstamp,
	}
	for _, c := range cases {
		packed := Pack(Tuple{c})
		got, err := Unpack(packed)
		if err != nil {
			t.Fatalf("unpack(%v): %v", c, err)
		}
		if len(got) != 1 {
			t.Fatalf("unpack(%v): got %d elements", c, len(got))
		}
		switch want := c.(type) {
		case []byte:
			gb, ok := got[0].([]byte)
			if !ok || !bytes.Equal(gb, want) {
				t.Errorf("%v: got %v", c, got[0])
			}
		default:
			if got[0] != c {
				t.Errorf("%v: got %v", c, got[0])
			}
		}
	}
}

// TestRoundTripTimestamp verifies Date/timestamp elements round-trip to
// within nanosecond precision lost by the float64-seconds encoding, and
// that order matches chronological order (spec Β§4.1, "silent bug" note).
func TestRoundTripTimestamp(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	packed := Pack(Tuple{ts})
	got, err := Unpack(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	gotTime := got[0].(time.Time)
	if gotTime.Unix() != ts.Unix() {
		t.Errorf("got %v want %v", gotTime, ts)
	}
}

// TestRoundTripNested verifies nested tuples round-trip, including a
// nested tuple that itself contains a zero byte (exercises the escaping
// path shared between bytes/strings and nested-tuple terminators).
func TestRoundTripNested(t *testing.T) {
	nested := Tuple{int64(1), "x", []byte{0x00, 0x00, 0xFF}}
	outer := Tuple{"prefix", nested, int64(2)}

	got, err := Unpack(Pack(outer))
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d elements, want 3", len(got))
	}
	innerGot, ok := got[1].(Tuple)
	if !ok {
		t.Fatalf("got[1] is %T, want Tuple", got[1])
	}
	if len(innerGot) != 3 || innerGot[0] != int64(1) || innerGot[1] != "x" {
		t.Errorf("nested mismatch: %v", innerGot)
	}
}

// TestOrderPreservationIntegers checks that pack() orders integers the
// same way Go's `<` does, across the boundary-case values named in spec
// Β§8.3 (Β±9e18) plus zero and small values near it.
func TestOrderPreservationIntegers(t *testing.T) {
	values := []int64{
		math.MinInt64, -9000000000000000000, -1000, -1, 0, 1, 1000,
		9000000000000000000, math.MaxInt64,
	}
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			a, b := values[i], values[j]
			pa := Pack(Tuple{a})
			pb := Pack(Tuple{b})
			if bytes.Compare(pa, pb) >= 0 {
				t.Errorf("pack(%d) should be < pack(%d)", a, b)
			}
		}
	}
}

// TestOrderPreservationFloats checks negative, zero, and positive floats
// order correctly including across the sign boundary.
func TestOrderPreservationFloats(t *testing.T) {
	values := []float64{-1e300, -1.5, -0.001, 0, 0.001, 1.5, 1e300}
	for i := 0; i < len(values)-1; i++ {
		pa := Pack(Tuple{values[i]})
		pb := Pack(Tuple{values[i+1]})
		if bytes.Compare(pa, pb) >= 0 {
			t.Errorf("pack(%v) should be < pack(%v)", values[i], values[i+1])
		}
	}
}

// TestOrderPreservationStrings checks lexicographic string order,
// including empty string, long strings (>=10000 chars), and strings with
// embedded 0x00/0xFF bytes (spec Β§8.3).
func TestOrderPreservationStrings(t *testing.T) {
	long := make([]byte, 10000)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	values := []string{"", "a", "aa", "ab", string(long), "b"}
	for i := 0; i < len(values)-1; i++ {
		pa := Pack(Tuple{values[i]})
		pb := Pack(Tuple{values[i+1]})
		if bytes.Compare(pa, pb) >= 0 {
			t.Errorf("pack(%q) should be < pack(%q)", values[i], values[i+1])
		}
	}
}

// TestOrderPreservationBytesWithNulls verifies raw byte strings containing
// 0x00 and 0xFF still order correctly after escaping (spec Β§8.3).
func TestOrderPreservationBytesWithNulls(t *testing.T) {
	values := [][]byte{
		{0x00}, {0x00, 0x00}, {0x00, 0x01}, {0x01}, {0xFE}, {0xFF},
	}
	for i := 0; i < len(values)-1; i++ {
		pa := Pack(Tuple{values[i]})
		pb := Pack(Tuple{values[i+1]})
		if bytes.Compare(pa, pb) >= 0 {
			t.Errorf("pack(%v) should be < pack(%v)", values[i], values[i+1])
		}
	}
}

// TestVersionstampPlaceholderOffset verifies the helper locates the
// incomplete versionstamp's payload bytes so a KV layer can patch them.
func TestVersionstampPlaceholderOffset(t *testing.T) {
	packed := Pack(Tuple{"prefix", IncompleteVersionstamp})
	off := VersionstampPlaceholderOffset(packed)
	if off < 0 {
		t.Fatal("expected an offset, got -1")
	}
	if !bytes.Equal(packed[off:off+10], IncompleteVersionstamp[:]) {
		t.Errorf("offset %d does not point at the placeholder bytes", off)
	}

	complete := Pack(Tuple{"prefix", Versionstamp{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}})
	if off := VersionstampPlaceholderOffset(complete); off != -1 {
		t.Errorf("expected -1 for a complete versionstamp, got %d", off)
	}
}

// TestCompareMatchesPackOrder cross-checks Compare (used by the index
// maintainers) against byte-order of Pack for a
// grab-bag of tuples.
func TestCompareMatchesPackOrder(t *testing.T) {
	tuples := []Tuple{
		{int64(1), "a"},
		{int64(1), "b"},
		{int64(2), "a"},
		{int64(-5), "z"},
	}
	for i := range tuples {
		for j := range tuples {
			want := bytes.Compare(Pack(tuples[i]), Pack(tuples[j]))
			got := Compare(tuples[i], tuples[j])
			if sign(want) != sign(got) {
				t.Errorf("Compare(%v,%v)=%d, pack order=%d", tuples[i], tuples[j], got, want)
			}
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
