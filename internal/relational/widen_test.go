package relational

import "testing"

func TestWidenOrder(t *testing.T) {
	cases := []struct {
		old, new string
		want     bool
	}{
		{"BOOLEAN", "BIGINT", true},
		{"BIGINT", "DOUBLE", true},
		{"DOUBLE", "VARCHAR(255)", true},
		{"VARCHAR(255)", "TEXT", true},
		{"VARCHAR(45)", "VARCHAR(50)", false},
		{"BIGINT", "BOOLEAN", false},
		{"TEXT", "BIGINT", false},
		{"BIGINT", "BIGINT", false},
		{"CHAR(36)", "DATETIME", false},
	}
	for _, c := range cases {
		ok, newType := Widen(c.old, c.new)
		if ok != c.want {
			t.Errorf("Widen(%q, %q) = %v, want %v", c.old, c.new, ok, c.want)
		}
		if ok && newType != c.new {
			t.Errorf("Widen(%q, %q) returned type %q, want %q", c.old, c.new, newType, c.new)
		}
	}
}

func TestWidenIsCaseAndSpaceInsensitive(t *testing.T) {
	ok, newType := Widen(" bigint ", "double")
	if !ok || newType != "DOUBLE" {
		t.Errorf("Widen lowercase/space variants = (%v, %q), want (true, DOUBLE)", ok, newType)
	}
}
