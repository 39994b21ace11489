package query

import (
	"errors"
	"testing"
)

func testSchema() Schema {
	return Schema{
		"index":     KindInt,
		"file_path": KindString,
		"split":     KindString,
		"labels":    KindArray,
		"conf":      KindFloat,
		"frame":     KindInt,
		"flagged":   KindBool,
	}
}

func TestMatches(t *testing.T) {
	doc := Document{
		"index":     Int(7),
		"file_path": String("images/train/cat_001.jpg"),
		"split":     String("train"),
		"labels":    Strings("cat", "person"),
		"conf":      Float(0.82),
		"frame":     Int(14),
		"flagged":   Bool(true),
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"eq string match", Eq("split", String("train")), true},
		{"eq string no match", Eq("split", String("val")), false},
		{"ne string", Ne("split", String("val")), true},
		{"eq int", Eq("frame", Int(14)), true},
		{"eq int vs float operand", Eq("frame", Float(14)), true},
		{"gt float", Gt("conf", Float(0.5)), true},
		{"gt float false", Gt("conf", Float(0.9)), false},
		{"ge boundary", Ge("conf", Float(0.82)), true},
		{"lt int", Lt("frame", Int(20)), true},
		{"le boundary", Le("frame", Int(14)), true},
		{"eq bool", Eq("flagged", Bool(true)), true},
		{"in match", In("split", String("train"), String("val")), true},
		{"in no match", In("split", String("val"), String("test")), false},
		{"contains label", Contains("labels", String("person")), true},
		{"contains label missing", Contains("labels", String("dog")), false},
		{"contains substring", Contains("file_path", String("train/cat")), true},
		{"contains substring case-sensitive", Contains("file_path", String("TRAIN")), false},
		{"like pattern", Like("file_path", "%cat_0__.jpg"), true},
		{"like pattern case-insensitive", Like("file_path", "%CAT%"), true},
		{"like no match", Like("file_path", "dog%"), false},
		{"like on labels", Like("labels", "per%"), true},
		{"and all match", And(Eq("split", String("train")), Gt("conf", Float(0.5))), true},
		{"and one fails", And(Eq("split", String("train")), Gt("conf", Float(0.9))), false},
		{"or one matches", Or(Eq("split", String("val")), Contains("labels", String("cat"))), true},
		{"or none match", Or(Eq("split", String("val")), Contains("labels", String("dog"))), false},
		{"not", Not(Eq("split", String("val"))), true},
		{"nested", And(Or(Eq("split", String("train")), Eq("split", String("val"))), Not(Contains("labels", String("dog")))), true},
		{"missing field never matches", Eq("camera", String("front")), false},
		{"ne on missing field is false", Ne("camera", String("front")), false},
		{"not over missing field matches", Not(Eq("camera", String("front"))), true},
		{"nil matches everything", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.pred, doc); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s := testSchema()

	tests := []struct {
		name    string
		pred    Predicate
		wantErr bool
	}{
		{"valid eq", Eq("split", String("train")), false},
		{"valid range", And(Ge("conf", Float(0.5)), Lt("conf", Float(0.9))), false},
		{"valid contains on array", Contains("labels", String("cat")), false},
		{"valid like on array", Like("labels", "ca%"), false},
		{"valid in", In("frame", Int(1), Int(2)), false},
		{"nil is valid", nil, false},
		{"unknown field", Eq("camera", String("front")), true},
		{"empty field", Eq("", String("x")), true},
		{"eq kind mismatch", Eq("split", Int(3)), true},
		{"eq on array field", Eq("labels", Strings("cat")), true},
		{"gt on string field", Gt("split", String("a")), true},
		{"gt with string operand", Gt("conf", String("0.5")), true},
		{"like on numeric field", Like("conf", "0.%"), true},
		{"contains on bool field", Contains("flagged", Bool(true)), true},
		{"contains array operand on array field", Contains("labels", Strings("cat")), true},
		{"in empty list", In("split"), true},
		{"in element kind mismatch", In("split", String("train"), Int(1)), true},
		{"in on array field", In("labels", String("cat")), true},
		{"empty and", And(), true},
		{"empty or", Or(), true},
		{"nil child in and", And(Eq("split", String("train")), nil), true},
		{"not nil child", Not(nil), true},
		{"invalid nested child", Or(Eq("split", String("train")), Eq("nope", Int(1))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pred, s)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPredicate) {
					t.Errorf("Validate() = %v, want ErrInvalidPredicate", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() failed: %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"int":     KindInt,
		"Integer": KindInt,
		"float":   KindFloat,
		"string":  KindString,
		"bool":    KindBool,
		"array":   KindArray,
	} {
		got, err := ParseKind(in)
		if err != nil {
			t.Fatalf("ParseKind(%q) failed: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseKind("blob"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
