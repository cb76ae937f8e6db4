package driver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/genja-build/genja/internal/conf"
	"github.com/genja-build/genja/internal/graph"
	"github.com/genja-build/genja/internal/ninja"
)

func writeScript(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ScriptName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runTree(t *testing.T, src string) *Driver {
	t.Helper()
	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(nil); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestConfigureEndToEnd(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
extend_config({"cc": {"path": "/usr/bin/cc", "cxxpath": "/usr/bin/c++"}})
subdir("A")
subdir("B")
`)
	writeScript(t, filepath.Join(src, "A"), `
obj = compile(output = "foo.o", source = "foo.c", flags = ["-O2"])
obj.set_metadata("objpath", obj.outputs[0])
alias("a_obj", deps = [obj], inherit_metadata = ["objpath"])
`)
	writeScript(t, filepath.Join(src, "B"), `
a = find_target("a_obj")
obj = compile(output = "bar.o", source = "bar.c")
link(output = "prog", objects = [a.metadata("objpath"), obj])
`)

	d := runTree(t, src)

	// build directory mirrors the source tree
	for _, sub := range []string{"A", "B"} {
		if st, err := os.Stat(filepath.Join(src, "build", sub)); err != nil || !st.IsDir() {
			t.Errorf("build subdirectory %s missing", sub)
		}
	}

	// every script read is an input of the reconfigure target
	var scripts []string
	for _, dep := range d.Graph().Reconfigure().Inputs {
		scripts = append(scripts, dep.Paths()...)
	}
	for _, want := range []string{
		filepath.Join(src, ScriptName),
		filepath.Join(src, "A", ScriptName),
		filepath.Join(src, "B", ScriptName),
	} {
		found := false
		for _, s := range scripts {
			if s == want {
				found = true
			}
		}
		if !found {
			t.Errorf("reconfigure inputs missing %s (have %v)", want, scripts)
		}
	}

	s := &ninja.Serializer{
		SelfCommand:  []string{"genja", "configure", src},
		SnapshotFile: "genja_config.toml",
	}
	files, err := s.Serialize(d.Graph())
	if err != nil {
		t.Fatal(err)
	}
	var root string
	for _, f := range files {
		if f.Name == ninja.RootFile {
			root = string(f.Data)
		}
	}

	iA := strings.Index(root, "build A/foo.o: cc "+filepath.Join(src, "A", "foo.c"))
	iB := strings.Index(root, "build B/bar.o: cc "+filepath.Join(src, "B", "bar.c"))
	iLink := strings.Index(root, "build B/prog: link A/foo.o B/bar.o")
	if iA < 0 || iB < 0 || iLink < 0 {
		t.Fatalf("missing build statements in:\n%s", root)
	}
	if !(iA < iLink && iB < iLink) {
		t.Errorf("compile statements must precede the link statement")
	}

	// tags/all transitively reaches the link output
	if !strings.Contains(root, "B/prog") || !strings.Contains(root, "build tags/all: phony") {
		t.Errorf("tags/all missing in:\n%s", root)
	}
	allLine := ""
	for _, line := range strings.Split(root, "\n") {
		if strings.HasPrefix(line, "build tags/all: phony") {
			allLine = line
		}
	}
	if !strings.Contains(allLine, "B/prog") {
		t.Errorf("tags/all does not depend on the link output: %q", allLine)
	}
}

func TestProjectQualifiesAliasNames(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
def setup():
    alias("x", deps = ["data.txt"])

project("top", setup)
alias("y", deps = ["other.txt"])
`)

	d := runTree(t, src)

	if _, err := d.Graph().FindAlias("top/x"); err != nil {
		t.Errorf("qualified alias not found: %v", err)
	}
	// outside the project block the namespace is restored
	if _, err := d.Graph().FindAlias("y"); err != nil {
		t.Errorf("unqualified alias not found: %v", err)
	}
}

func TestSubdirReturnsExportedGlobals(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
sub = subdir("lib")
copy(dest = "out.txt", src = sub["source_file"])
`)
	writeScript(t, filepath.Join(src, "lib"), `
source_file = "input.txt"
_private = "hidden"
`)

	d := runTree(t, src)

	found := false
	for _, target := range d.Graph().Targets() {
		if target.Kind == graph.KindCopy {
			found = true
			want := filepath.Join(src, "input.txt")
			if got := target.Inputs[0].Paths()[0]; got != want {
				t.Errorf("copy input = %q, want %q", got, want)
			}
		}
	}
	if !found {
		t.Fatal("copy target not declared")
	}
}

func TestScriptErrorCarriesPath(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `subdir("bad")`)
	writeScript(t, filepath.Join(src, "bad"), `undefined_symbol()`)

	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	err = d.Run(nil)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("got %v, want a ScriptError", err)
	}
	if !strings.Contains(err.Error(), filepath.Join("bad", ScriptName)) {
		t.Errorf("error %v does not name the failing script", err)
	}
}

func TestMissingScriptFails(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `subdir("nonexistent")`)

	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	err = d.Run(nil)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("got %v, want a ScriptError", err)
	}
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"both command and commands", `command(outputs = ["o"], command = "true", commands = ["true"])`},
		{"neither command nor commands", `command(outputs = ["o"])`},
		{"empty outputs", `command(outputs = [], command = "true")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := t.TempDir()
			writeScript(t, src, tt.script)
			d, err := New(src, filepath.Join(src, "build"))
			if err != nil {
				t.Fatal(err)
			}
			if err := d.Run(nil); err == nil {
				t.Fatal("expected a configuration error")
			}
		})
	}
}

func TestCompileRejectsSourceList(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
extend_config({"cc": {"path": "/usr/bin/cc"}})
compile(output = "a.o", source = ["a.c", "b.c"])
`)
	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(nil); err == nil {
		t.Fatal("compile with a source list must fail")
	}
}

func TestLinkRejectsEmptyObjects(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
extend_config({"cc": {"path": "/usr/bin/cc"}})
link(output = "prog", objects = [])
`)
	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(nil); err == nil {
		t.Fatal("link with no objects must fail")
	}
}

func TestAliasInheritRequiresSingleDep(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
a = command(outputs = ["a"], command = "true")
b = command(outputs = ["b"], command = "true")
alias("both", deps = [a, b], inherit_metadata = ["x"])
`)
	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	err = d.Run(nil)
	if err == nil || !strings.Contains(err.Error(), "inherit_metadata") {
		t.Fatalf("got %v, want an inherit_metadata error", err)
	}
}

func TestAliasInheritCopiesMetadata(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
a = command(outputs = ["a"], command = "true")
a.set_metadata("x", "value")
al = alias("wrapper", deps = [a], inherit_metadata = ["x"])
`)

	d := runTree(t, src)
	alias, err := d.Graph().FindAlias("wrapper")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := alias.MetadataValue("x"); !ok || v != "value" {
		t.Errorf("inherited metadata = %v (present %v), want \"value\"", v, ok)
	}
}

func TestDuplicateOutputAcrossScriptsFails(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
command(outputs = ["same"], command = "true")
command(outputs = ["same"], command = "false")
`)
	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	err = d.Run(nil)
	if err == nil {
		t.Fatal("duplicate outputs must abort the configure pass")
	}
	if !strings.Contains(err.Error(), "same") {
		t.Errorf("error %v does not name the offending output", err)
	}
}

func TestExtendConfigTransform(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
extend_config({"flags": ["-O2"]})

def add_debug(old):
    return old + ["-g"]

extend_config({"flags": add_debug})
`)

	d := runTree(t, src)
	flags, ok := d.Config().Lookup([]string{"flags"})
	if !ok || flags.Kind() != conf.KindList {
		t.Fatalf("flags missing from config")
	}
	var got []string
	for _, item := range flags.Items() {
		got = append(got, item.StringVal())
	}
	if len(got) != 2 || got[0] != "-O2" || got[1] != "-g" {
		t.Errorf("flags = %v, want [-O2 -g]", got)
	}
}

func TestConfigReadback(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
extend_config({"app": {"name": "prog"}})
command(outputs = [config("app.name")], command = "true")
`)

	d := runTree(t, src)
	for _, target := range d.Graph().Targets() {
		if target.Kind == graph.KindCommand && target.Outputs[0] == "prog" {
			return
		}
	}
	t.Fatal("command target with configured output name not found")
}

func TestExpressionExpansion(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
extend_config({"triple": "{{ target_os }}-{{ target_arch }}"})
`)

	d := runTree(t, src)
	v, ok := d.Config().Lookup([]string{"triple"})
	if !ok {
		t.Fatal("triple missing")
	}
	if strings.Contains(v.StringVal(), "{{") || !strings.Contains(v.StringVal(), "-") {
		t.Errorf("triple = %q, want expanded os-arch pair", v.StringVal())
	}
}

func TestMarkGeneratedAndReconfigureOn(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
mark_generated("version.h")
reconfigure_on("VERSION")
`)

	d := runTree(t, src)
	reconf := d.Graph().Reconfigure()

	foundOut := false
	for _, out := range reconf.Outputs {
		if out == "version.h" {
			foundOut = true
		}
	}
	if !foundOut {
		t.Errorf("version.h not among reconfigure outputs: %v", reconf.Outputs)
	}

	foundIn := false
	want := filepath.Join(src, "VERSION")
	for _, dep := range reconf.Inputs {
		for _, p := range dep.Paths() {
			if p == want {
				foundIn = true
			}
		}
	}
	if !foundIn {
		t.Errorf("VERSION not among reconfigure inputs")
	}
}

func TestPreloadSeedsConfig(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
command(outputs = [config("seed")], command = "true")
`)
	preload := filepath.Join(src, "preload.genja")
	if err := os.WriteFile(preload, []byte(`extend_config({"seed": "seeded"})`), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := New(src, filepath.Join(src, "build"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run([]string{preload}); err != nil {
		t.Fatal(err)
	}

	for _, target := range d.Graph().Targets() {
		if target.Kind == graph.KindCommand && target.Outputs[0] == "seeded" {
			return
		}
	}
	t.Fatal("preload configuration not visible to the root script")
}

func TestGlobReturnsAbsoluteSortedPaths(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"b.c", "a.c", "x.h"} {
		if err := os.WriteFile(filepath.Join(src, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeScript(t, src, `
extend_config({"sources": glob("*.c")})
`)

	d := runTree(t, src)
	v, ok := d.Config().Lookup([]string{"sources"})
	if !ok || v.Len() != 2 {
		t.Fatalf("sources = %v", v.ToAny())
	}
	if v.Index(0).StringVal() != filepath.Join(src, "a.c") || v.Index(1).StringVal() != filepath.Join(src, "b.c") {
		t.Errorf("sources = %v, want sorted absolute a.c, b.c", v.ToAny())
	}
}

func TestTagsDefaultToAll(t *testing.T) {
	src := t.TempDir()
	writeScript(t, src, `
command(outputs = ["tagged"], command = "true", tags = ["special"])
command(outputs = ["untagged"], command = "true")
`)

	d := runTree(t, src)

	special, err := d.Graph().FindAlias("tags/special")
	if err != nil {
		t.Fatal(err)
	}
	if len(special.ImplicitInputs) != 1 {
		t.Errorf("tags/special has %d members, want 1", len(special.ImplicitInputs))
	}

	all, err := d.Graph().FindAlias("tags/all")
	if err != nil {
		t.Fatal(err)
	}
	for _, dep := range all.ImplicitInputs {
		if dep.Target() != nil && len(dep.Target().Outputs) > 0 && dep.Target().Outputs[0] == "tagged" {
			t.Errorf("explicitly tagged target must not default into tags/all")
		}
	}
}
