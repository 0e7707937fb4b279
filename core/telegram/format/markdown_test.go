package format

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	cases := map[string]string{
		"CS-101 (core)": `CS\-101 \(core\)`,
		"3.5 ⭐":         `3\.5 ⭐`,
		`a\b`:           `a\\b`,
		"plain":         "plain",
	}
	for in, want := range cases {
		if got := MD(in); got != want {
			t.Fatalf("MD(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeMarkdownCode(t *testing.T) {
	got, err := EscapeMarkdown("a`b\\c", MarkdownV2, "code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "a\\`b\\\\c"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownV1(t *testing.T) {
	got, err := EscapeMarkdown("_x_ *y*", MarkdownV1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `\_x\_ \*y\*`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownUnsupported(t *testing.T) {
	if _, err := EscapeMarkdown("x", 3, ""); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}
