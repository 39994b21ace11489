package query

import (
	"encoding/json"
	"testing"
)

func TestDocumentFromAny_JSONRoundTrip(t *testing.T) {
	src := Document{
		"conf":   Float(0.82),
		"frame":  Int(14),
		"camera": String("front"),
		"tags":   Strings("blur", "night"),
		"ok":     Bool(true),
	}

	raw, err := json.Marshal(src.AnyMap())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	got, err := DocumentFromAny(m)
	if err != nil {
		t.Fatalf("DocumentFromAny failed: %v", err)
	}
	got.Normalize(Schema{"frame": KindInt})

	if v := got["frame"]; v.Kind != KindInt || v.I64 != 14 {
		t.Fatalf("frame = %#v, want Int(14)", v)
	}
	if v := got["conf"]; v.Kind != KindFloat || v.F64 != 0.82 {
		t.Fatalf("conf = %#v, want Float(0.82)", v)
	}
	if v := got["camera"]; v.Kind != KindString || v.S != "front" {
		t.Fatalf("camera = %#v, want String(front)", v)
	}
	if v := got["ok"]; v.Kind != KindBool || !v.B {
		t.Fatalf("ok = %#v, want Bool(true)", v)
	}
	if v := got["tags"]; v.Kind != KindArray || len(v.A) != 2 || v.A[0].S != "blur" {
		t.Fatalf("tags = %#v, want [blur night]", v)
	}
}

func TestSchemaValidateDocument(t *testing.T) {
	s := Schema{"conf": KindFloat, "frame": KindInt}

	if err := s.Validate(Document{"conf": Float(0.5), "frame": Int(3)}); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
	// Ints upgrade to float fields.
	if err := s.Validate(Document{"conf": Int(1)}); err != nil {
		t.Fatalf("int on float field rejected: %v", err)
	}
	if err := s.Validate(Document{"camera": String("front")}); err == nil {
		t.Fatal("undeclared field accepted")
	}
	if err := s.Validate(Document{"frame": String("three")}); err == nil {
		t.Fatal("kind mismatch accepted")
	}
}
