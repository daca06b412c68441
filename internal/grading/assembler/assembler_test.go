package assembler_test

import (
	"errors"
	"testing"

	"quizsys/internal/grading/assembler"
)

func TestAssembleFillsBlanksInOrder(t *testing.T) {
	template := "a = ___\nb = _____\nprint(a + b)\n"
	got, err := assembler.Assemble(template, "1;2")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	want := "a = 1\nb = 2\nprint(a + b)\n"
	if got != want {
		t.Fatalf("Assemble = %q, want %q", got, want)
	}
}

func TestAssembleRoundTrip(t *testing.T) {
	// Filling every blank with "___" gives back the template.
	template := "x = ___\nif x > ___:\n    print(___)\n"
	got, err := assembler.Assemble(template, "___;___;___")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if got != template {
		t.Fatalf("round trip changed template: %q", got)
	}
}

func TestAssembleFragmentWithUnderscoresIsNotRescanned(t *testing.T) {
	got, err := assembler.Assemble("f(___, ___)", "a____b;c")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if got != "f(a____b, c)" {
		t.Fatalf("Assemble = %q", got)
	}
}

func TestAssembleMismatch(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{name: "too few", response: "1"},
		{name: "too many", response: "1;2;3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := assembler.Assemble("a = ___\nb = ___\n", tc.response)
			if !errors.Is(err, assembler.ErrBlankMismatch) {
				t.Fatalf("expected ErrBlankMismatch, got %v", err)
			}
		})
	}
}

func TestAssembleWithoutBlanksUsesResponse(t *testing.T) {
	for _, template := range []string{"", "print('hi')\n", "a_b = __\n"} {
		got, err := assembler.Assemble(template, "print(1)")
		if err != nil {
			t.Fatalf("Assemble(%q) error: %v", template, err)
		}
		if got != "print(1)" {
			t.Fatalf("Assemble(%q) = %q", template, got)
		}
	}
}

func TestCountBlanksFullwidth(t *testing.T) {
	if n := assembler.CountBlanks("x = ＿＿＿\ny = ___"); n != 2 {
		t.Fatalf("CountBlanks = %d, want 2", n)
	}
}
