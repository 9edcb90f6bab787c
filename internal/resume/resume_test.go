package resume

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompletedPages_MissingFile(t *testing.T) {
	got := CompletedPages(filepath.Join(t.TempDir(), "does-not-exist.md"))
	if len(got) != 0 {
		t.Fatalf("want empty set, got %v", got)
	}
}

func TestCompletedPages_ScattersAndSeparators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	writeFile(t, path,
		"## Page 3\n\nthird\n\n---\n\n## Page 1\n\nfirst\n\n---\n\n## Page 5\n\nfifth")

	got := CompletedPages(path)
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want pages %v", got, want)
	}
	for _, n := range want {
		if _, ok := got[n]; !ok {
			t.Errorf("page %d missing from %v", n, got)
		}
	}
}

func TestCompletedPages_DuplicatesCollapse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	writeFile(t, path, "## Page 2\n\na\n\n---\n\n## Page 2\n\nb")

	got := CompletedPages(path)
	if len(got) != 1 {
		t.Fatalf("duplicates must collapse, got %v", got)
	}
}

func TestCompletedPages_HeaderMustStartLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	writeFile(t, path, "## Page 1\n\nthe text mentions ## Page 9 inline\nbut ## Page 7 mid-line does not count")

	got := CompletedPages(path)
	if _, ok := got[1]; !ok || len(got) != 1 {
		t.Fatalf("want exactly {1}, got %v", got)
	}
}
