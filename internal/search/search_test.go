package search

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLines(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.out")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileMatches(t *testing.T) {
	path := writeLines(t, "alpha ERROR one\nbeta ok\nGAMMA error two\ndelta warn\n")

	matches, stats, err := File(path, []Filter{
		{Value: "error"},
		{Value: "warn"},
	})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches = %+v, want 3 lines", matches)
	}
	if matches[0].Line != 0 || matches[1].Line != 2 || matches[2].Line != 3 {
		t.Errorf("match lines = %+v, want 0, 2, 3", matches)
	}
	if stats[0] != 2 || stats[1] != 1 {
		t.Errorf("stats = %v, want filter 0 twice, filter 1 once", stats)
	}
}

func TestFileCaseSensitive(t *testing.T) {
	path := writeLines(t, "ERROR\nerror\n")
	matches, _, err := File(path, []Filter{{Value: "ERROR", CaseSensitive: true}})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(matches) != 1 || matches[0].Line != 0 {
		t.Errorf("matches = %+v, want only line 0", matches)
	}
}

func TestFileWordBoundary(t *testing.T) {
	path := writeLines(t, "errors galore\nan error here\n")
	matches, _, err := File(path, []Filter{{Value: "error", Word: true}})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(matches) != 1 || matches[0].Line != 1 {
		t.Errorf("matches = %+v, want only line 1", matches)
	}
}

func TestFileRegex(t *testing.T) {
	path := writeLines(t, "code=401\ncode=200\ncode=500\n")
	matches, _, err := File(path, []Filter{{Value: `code=[45]\d\d`, IsRegex: true}})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("matches = %+v, want lines 0 and 2", matches)
	}
}

func TestFileNoFilters(t *testing.T) {
	path := writeLines(t, "anything\n")
	matches, stats, err := File(path, nil)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(matches) != 0 || len(stats) != 0 {
		t.Errorf("no filters: matches %v stats %v, want empty", matches, stats)
	}
}

func TestFileBadRegex(t *testing.T) {
	path := writeLines(t, "x\n")
	if _, _, err := File(path, []Filter{{Value: "(", IsRegex: true}}); err == nil {
		t.Error("File accepted an invalid regex")
	}
}
