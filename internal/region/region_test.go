package region

import "testing"

func TestContains(t *testing.T) {
	r := &Region{VBase: 0x1000, Size: 0x2000}
	cases := []struct {
		addr uintptr
		want bool
	}{
		{0x0fff, false},
		{0x1000, true},
		{0x2fff, true},
		{0x3000, false},
	}
	for _, c := range cases {
		if got := r.Contains(c.addr); got != c.want {
			t.Errorf("Contains(%#x) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestLookupFirstMatchHeadFirst(t *testing.T) {
	var l List
	l.Prepend(&Region{VBase: 0x1000, Size: 0x1000, Kind: KindData})
	l.Prepend(&Region{VBase: 0x1000, Size: 0x1000, Kind: KindCode}) // overlapping, prepended later

	r := l.Lookup(0x1000)
	if r == nil || r.Kind != KindCode {
		t.Fatalf("expected the most recently prepended (head) region to win, got %+v", r)
	}
}

func TestLookupMiss(t *testing.T) {
	var l List
	l.Prepend(&Region{VBase: 0x1000, Size: 0x1000})
	if l.Lookup(0x5000) != nil {
		t.Fatal("expected no match")
	}
}

func TestClear(t *testing.T) {
	var l List
	l.Prepend(&Region{VBase: 0, Size: 0x1000})
	l.Clear()
	if l.Lookup(0) != nil {
		t.Fatal("expected empty list after Clear")
	}
}

func TestCloneIsDeepAndOrderPreserving(t *testing.T) {
	var l List
	l.Prepend(&Region{VBase: 0x1000, Size: 0x1000, Kind: KindCode, WriteableSaved: false})
	l.Prepend(&Region{VBase: 0x2000, Size: 0x1000, Kind: KindStack, WriteableSaved: true})

	clone := l.Clone()

	var origOrder, cloneOrder []Kind
	l.Each(func(r *Region) { origOrder = append(origOrder, r.Kind) })
	clone.Each(func(r *Region) { cloneOrder = append(cloneOrder, r.Kind) })

	if len(origOrder) != len(cloneOrder) {
		t.Fatalf("length mismatch: %d vs %d", len(origOrder), len(cloneOrder))
	}
	for i := range origOrder {
		if origOrder[i] != cloneOrder[i] {
			t.Fatalf("order mismatch at %d: %v vs %v", i, origOrder[i], cloneOrder[i])
		}
	}

	// Mutating the original must not affect the clone.
	l.head.Writeable = true
	if clone.head.Writeable {
		t.Fatal("Clone should be independent of the original")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindOther: "other",
		KindCode:  "code",
		KindData:  "data",
		KindStack: "stack",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(k), got, want)
		}
	}
}
