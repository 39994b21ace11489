package checksum

import "testing"

func TestDigest_Deterministic(t *testing.T) {
	a := New()
	a.WriteString("cat.jpg")
	a.WriteInt(42)
	a.WriteBytes([]byte{1, 2, 3})

	b := New()
	b.WriteString("cat.jpg")
	b.WriteInt(42)
	b.WriteBytes([]byte{1, 2, 3})

	if a.Sum32() != b.Sum32() {
		t.Fatalf("same input produced different checksums: %08x vs %08x", a.Sum32(), b.Sum32())
	}
	if a.String() != b.String() {
		t.Fatalf("String mismatch: %s vs %s", a.String(), b.String())
	}
}

func TestDigest_FieldBoundaries(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc".
	a := New()
	a.WriteString("ab")
	a.WriteString("c")

	b := New()
	b.WriteString("a")
	b.WriteString("bc")

	if a.Sum32() == b.Sum32() {
		t.Fatal("length prefix failed to separate adjacent fields")
	}
}

func TestDigest_Reset(t *testing.T) {
	d := New()
	d.WriteString("x")
	first := d.Sum32()
	d.Reset()
	d.WriteString("x")
	if d.Sum32() != first {
		t.Fatalf("Reset did not restore initial state: %08x vs %08x", d.Sum32(), first)
	}
}
