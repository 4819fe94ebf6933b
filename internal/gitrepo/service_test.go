package gitrepo

import (
	"testing"

	"rostrum/api/internal/resolution"
)

func testResolution(clauses ...string) resolution.Resolution {
	res := resolution.Blank()
	res.Forum = "UNEP"
	res.QuestionOf = "Plastic pollution"
	res.SubmittedBy = "France"
	res.OperativeClauses = clauses
	return res
}

func TestCommitAndHistory(t *testing.T) {
	svc := New(t.TempDir())

	first, err := svc.Commit("unep", "Coastal Alliance", testResolution("1. _first_"), "usr_1", "Insert operative clause 1")
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if first.Hash == "" || first.Author != "usr_1" {
		t.Fatalf("unexpected commit info: %+v", first)
	}

	second, err := svc.Commit("unep", "Coastal Alliance", testResolution("1. _first_", "2. _second_"), "usr_2", "Insert operative clause 2")
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}

	history, err := svc.History("unep", "Coastal Alliance", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("want 2 revisions, got %d", len(history))
	}
	if history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("history not newest-first: %+v", history)
	}
	if history[0].Message != "Insert operative clause 2" {
		t.Fatalf("unexpected message: %q", history[0].Message)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())

	for i, clause := range []string{"a", "b", "c"} {
		if _, err := svc.Commit("unep", "bloc", testResolution(clause), "usr_1", "edit"); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	history, err := svc.History("unep", "bloc", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("want 2 revisions with limit, got %d", len(history))
	}
}

func TestHistoryEmptyForUnknownBloc(t *testing.T) {
	svc := New(t.TempDir())

	history, err := svc.History("unep", "ghost", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("want empty history, got %+v", history)
	}
}

func TestResolutionAt(t *testing.T) {
	svc := New(t.TempDir())

	info, err := svc.Commit("unep", "bloc", testResolution("1. _first_"), "usr_1", "edit")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := svc.Commit("unep", "bloc", testResolution("1. _first_", "2. _second_"), "usr_1", "edit"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, err := svc.ResolutionAt("unep", "bloc", info.Hash)
	if err != nil {
		t.Fatalf("resolution at: %v", err)
	}
	if len(res.OperativeClauses) != 1 || res.OperativeClauses[0] != "1. _first_" {
		t.Fatalf("wrong revision content: %+v", res)
	}
	if res.Forum != "UNEP" {
		t.Fatalf("headers not preserved: %+v", res)
	}
}

func TestBlocsAreIsolated(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.Commit("unep", "alpha", testResolution("a"), "usr_1", "edit"); err != nil {
		t.Fatalf("commit alpha: %v", err)
	}
	if _, err := svc.Commit("unep", "beta", testResolution("b"), "usr_1", "edit"); err != nil {
		t.Fatalf("commit beta: %v", err)
	}

	history, err := svc.History("unep", "alpha", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("alpha history polluted: %+v", history)
	}
}

func TestSanitizePathPart(t *testing.T) {
	cases := map[string]string{
		"Coastal Alliance": "Coastal-Alliance",
		"../escape":        "escape",
		"":                 "unnamed",
		"under_score":      "under_score",
	}
	for input, want := range cases {
		if got := sanitizePathPart(input); got != want {
			t.Errorf("sanitizePathPart(%q) = %q, want %q", input, got, want)
		}
	}
}
