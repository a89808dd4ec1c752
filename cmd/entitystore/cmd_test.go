package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out.String()
}

func TestVersion(t *testing.T) {
	got := run(t, "version")
	if got != "entitystore version dev\n" {
		t.Errorf("Unexpected version output %q", got)
	}
}

func TestSchemaCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	err := os.WriteFile(path, []byte(`
entities:
  - class: Person
    table: person
    id: id
    attributes:
      - name: id
      - name: name
        indexed: true
      - name: email
        column: mail
`), 0o644)
	if err != nil {
		t.Fatalf("Failed to write schema: %v", err)
	}

	got := run(t, "schema", "check", path)
	for _, want := range []string{
		"Person\n",
		"record:  person:<id>",
		"columns: mail, name",
		"index:   person:mail",
		"index:   person:name",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Output missing %q:\n%s", want, got)
		}
	}
}
