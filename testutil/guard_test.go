package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"vaultcore/internal/core", true},
		{"example.com/mod/internal", true},
		{"vaultcore/pkg/domain", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}

	forbidden := PackagesForbidden("vaultcore/pkg/domain")
	if !forbidden("vaultcore/pkg/domain") || !forbidden("vaultcore/pkg/domain/sub") {
		t.Fatalf("expected package and sub-packages to match")
	}
	if forbidden("vaultcore/pkg/domainx") {
		t.Fatalf("prefix match must stop at a path boundary")
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"vaultcore/internal/core\"\n)\nvar _ = fmt.Sprint\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"vaultcore/internal/blob\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"vaultcore/internal/infra\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "vaultcore/internal/core (in a.go)" {
		t.Fatalf("expected only the non-test top-level import, got %v", viols)
	}

	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	writeFile(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	AssertNoDirectImports(t, dir, InternalImportForbidden, "none")
}

func TestAssertNoTransitiveDependencyUsesGoList(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })
	goListDeps = func(pattern string) ([]byte, error) {
		if pattern != "./pkg/..." {
			t.Fatalf("unexpected pattern %q", pattern)
		}
		return []byte("fmt\nvaultcore/pkg/schema\n\n"), nil
	}
	AssertNoTransitiveDependency(t, "./pkg/...", InternalImportForbidden, "pkg stays standalone")

	if viols := matchLines("fmt\nvaultcore/internal/blob\n", InternalImportForbidden); len(viols) != 1 {
		t.Fatalf("expected one violation, got %v", viols)
	}
}

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "forbidden direct imports", "why", nil)
	if rec.msg != "" {
		t.Fatalf("no violations should not fail, got %q", rec.msg)
	}
	failIfViolations(rec, "forbidden direct imports", "why", []string{"a", "b"})
	if !strings.Contains(rec.msg, "(why)") || !strings.Contains(rec.msg, "a\nb") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
