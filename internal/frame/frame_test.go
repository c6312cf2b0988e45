package frame

import (
	"testing"
	"time"
)

// TestSetBCD checks the BCD packing helper against a few hand-worked
// values, most-significant digit at begin.
func TestSetBCD(t *testing.T) {
	var testData = []struct {
		description string
		begin, end  int
		value       uint
		wantSet     []int // indices expected true
	}{
		{
			description: "single digit 5 packs as 0101 across 4 slots",
			begin:       0, end: 3,
			value:   5,
			wantSet: []int{1, 3}, // 0101: idx0=0 idx1=1 idx2=0 idx3=1
		},
		{
			description: "zero value sets nothing",
			begin:       0, end: 7,
			value:   0,
			wantSet: nil,
		},
	}

	for _, td := range testData {
		t.Run(td.description, func(t *testing.T) {
			var data [60]bool
			setBCD(&data, td.begin, td.end, td.value)

			want := make(map[int]bool)
			for _, idx := range td.wantSet {
				want[idx] = true
			}
			for i := td.begin; i <= td.end; i++ {
				if data[i] != want[i] {
					t.Errorf("slot %d: got %v, want %v", i, data[i], want[i])
				}
			}
		})
	}
}

// TestOddParity checks the parity helper makes the transmitted total
// (data bits + parity bit) odd.
func TestOddParity(t *testing.T) {
	var data [60]bool
	data[10] = true
	data[12] = true
	data[14] = true // three set bits: already odd

	p := oddParity(&data, 10, 14)
	if p {
		t.Errorf("parity bit = true, want false (three set bits already odd)")
	}

	data[11] = true // four set bits: now even
	p = oddParity(&data, 10, 14)
	if !p {
		t.Errorf("parity bit = false, want true (four set bits need odd-up)")
	}
}

// TestNewEdgesMonotonicAndAlternating checks property 7 from spec.md
// §8: edges are strictly increasing in TS, and carrier state strictly
// alternates - no two consecutive edges carry the same state.
func TestNewEdgesMonotonicAndAlternating(t *testing.T) {
	f := New(1718454300, 0) // arbitrary minute-aligned UTC second

	if f.Empty() {
		t.Fatal("frame has no edges")
	}

	var last Signal
	for i, e := range f.edges {
		if i > 0 {
			if e.TS <= last.TS {
				t.Errorf("edge %d: TS %d not strictly after previous %d", i, e.TS, last.TS)
			}
			if e.Carrier == last.Carrier {
				t.Errorf("edge %d: carrier %v repeats previous state", i, e.Carrier)
			}
		}
		last = e
	}
}

// TestDropBeforeAll checks that no edge strictly before now survives
// DropBefore, and that the edges from now onward are kept.
func TestDropBeforeAll(t *testing.T) {
	f := New(1718454300, 0)
	total := len(f.edges)

	mid := f.edges[total/2].TS
	f.DropBefore(mid)

	for _, e := range f.edges {
		if e.TS < mid {
			t.Errorf("edge with TS %d survived DropBefore(%d)", e.TS, mid)
		}
	}
	if len(f.edges) == 0 {
		t.Fatal("DropBefore removed everything")
	}
}

// TestPopOrder checks Pop drains edges in the order scheduleEdges laid
// them out (FIFO), and Empty reports true only once drained.
func TestPopOrder(t *testing.T) {
	f := New(1718454300, 0)

	var prev Signal
	first := true
	for !f.Empty() {
		s := f.Pop()
		if !first && s.TS <= prev.TS {
			t.Errorf("Pop returned out-of-order TS %d after %d", s.TS, prev.TS)
		}
		prev, first = s, false
	}
	if !f.Empty() {
		t.Error("Empty() false after draining all edges")
	}
}

// TestDiagnosticLine checks the rendered line contains both the
// calendar string and the offset value.
func TestDiagnosticLine(t *testing.T) {
	f := New(1718454300, 1234)
	line := f.DiagnosticLine(1234)

	wantCal := f.Calendar.String()
	if !contains(line, wantCal) {
		t.Errorf("diagnostic line %q missing calendar %q", line, wantCal)
	}
	if !contains(line, "1234us") {
		t.Errorf("diagnostic line %q missing offset", line)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// TestMinuteMarkerBits checks the fixed 111110 minute-identifier
// pattern spec.md §2 mandates lands at seconds 53-58 of the A vector.
func TestMinuteMarkerBits(t *testing.T) {
	f := New(1718454300, 0)
	for i := 53; i <= 58; i++ {
		want := i != 59 // all true in 53-58
		if f.a[i] != want {
			t.Errorf("a[%d] = %v, want %v", i, f.a[i], want)
		}
	}
}

// TestNewIsDeterministic checks that building the same minute twice
// with the same offset yields identical edge schedules - the encoder
// is a pure function of (utcSecond, offsetUs).
func TestNewIsDeterministic(t *testing.T) {
	a := New(1718454300, 500)
	b := New(1718454300, 500)

	if len(a.edges) != len(b.edges) {
		t.Fatalf("edge counts differ: %d vs %d", len(a.edges), len(b.edges))
	}
	for i := range a.edges {
		if a.edges[i] != b.edges[i] {
			t.Errorf("edge %d differs: %+v vs %+v", i, a.edges[i], b.edges[i])
		}
	}
}

// TestFirstEdgeOneMinuteBeforeLabel sanity-checks the
// frame is scheduled to begin one minute before the labelled minute,
// in the monotonic domain after subtracting offsetUs.
func TestFirstEdgeOneMinuteBeforeLabel(t *testing.T) {
	const offsetUs = 2_000_000
	f := New(1718454300, offsetUs)

	wantFirst := uint64(1718454300*1_000_000-offsetUs) - uint64(time.Minute/time.Microsecond)
	if f.edges[0].TS != wantFirst {
		t.Errorf("first edge TS = %d, want %d", f.edges[0].TS, wantFirst)
	}
}
