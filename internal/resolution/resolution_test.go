package resolution

import "testing"

func TestFormatPreambulatory(t *testing.T) {
	if got := FormatPreambulatory("Deeply concerned"); got != "*Deeply concerned*" {
		t.Errorf("unexpected formatting %q", got)
	}
}

func TestFormatOperative(t *testing.T) {
	if got := FormatOperative(1, "Urges"); got != "1. _Urges_" {
		t.Errorf("unexpected formatting %q", got)
	}
	if got := FormatOperative(12, "Calls upon"); got != "12. _Calls upon_" {
		t.Errorf("unexpected formatting %q", got)
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind("preambulatory"); !ok || k != Preambulatory {
		t.Error("preambulatory should parse")
	}
	if k, ok := ParseKind("operative"); !ok || k != Operative {
		t.Error("operative should parse")
	}
	if _, ok := ParseKind("decorative"); ok {
		t.Error("unknown kinds must not parse")
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := Render(Blank()); got != "" {
		t.Errorf("empty resolution must render empty, got %q", got)
	}
}

func TestRenderPreambulatoryOnly(t *testing.T) {
	r := Resolution{
		PreambulatoryClauses: []string{"*Recalling*", "*Aware of*"},
	}
	want := "*Recalling*,\n\n*Aware of*,\n\n"
	if got := Render(r); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderOperativeOnly(t *testing.T) {
	r := Resolution{
		OperativeClauses: []string{"1. _Urges_", "2. _Requests_", "3. _Decides_"},
	}
	want := "1. _Urges_;\n\n2. _Requests_;\n\n3. _Decides_."
	if got := Render(r); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderFullDocument(t *testing.T) {
	r := Resolution{
		Forum:                "General Assembly",
		PreambulatoryClauses: []string{"*Recalling*"},
		OperativeClauses:     []string{"1. _Urges_", "2. _Requests_"},
	}
	want := "*Recalling*,\n\n1. _Urges_;\n\n2. _Requests_."
	if got := Render(r); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderIsPureAndIdempotent(t *testing.T) {
	r := Resolution{
		PreambulatoryClauses: []string{"*Recalling*", "*Observing*"},
		OperativeClauses:     []string{"1. _Urges_"},
	}
	first := Render(r)
	second := Render(r)
	if first != second {
		t.Errorf("renders differ: %q vs %q", first, second)
	}
	if r.PreambulatoryClauses[0] != "*Recalling*" || r.OperativeClauses[0] != "1. _Urges_" {
		t.Error("Render must not mutate its input")
	}
}

func TestPhraseCatalogs(t *testing.T) {
	if len(PreambulatoryPhrases) == 0 || len(OperativePhrases) == 0 {
		t.Fatal("phrase catalogs must not be empty")
	}
	seen := map[string]bool{}
	for _, p := range PreambulatoryPhrases {
		if seen[p] {
			t.Errorf("duplicate preambulatory phrase %q", p)
		}
		seen[p] = true
	}
}
