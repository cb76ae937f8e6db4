package graph

import (
	"errors"
	"testing"
)

func TestRegisterRejectsEmptyOutputs(t *testing.T) {
	g := New()
	err := g.Register(&Target{Kind: KindCommand, Commands: []string{"true"}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want a ConfigurationError", err)
	}
}

func TestRegisterRejectsDuplicateOutputs(t *testing.T) {
	g := New()
	if err := g.Register(&Target{Kind: KindCopy, Outputs: []string{"out.txt"}}); err != nil {
		t.Fatal(err)
	}
	err := g.Register(&Target{Kind: KindCopy, Outputs: []string{"out.txt"}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want a ConfigurationError", err)
	}
}

func TestRegisterRejectsDuplicateAliasName(t *testing.T) {
	g := New()
	if err := g.Register(&Target{Kind: KindAlias, Name: "x", Outputs: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	err := g.Register(&Target{Kind: KindAlias, Name: "x", Outputs: []string{"x2"}})
	if err == nil {
		t.Fatal("expected duplicate alias name to fail")
	}
}

// clean and help are meta-targets of every emitted build file; user targets
// must not be able to shadow them.
func TestRegisterRejectsReservedOutputs(t *testing.T) {
	for _, name := range []string{"clean", "help"} {
		g := New()
		err := g.Register(&Target{Kind: KindCopy, Outputs: []string{name}})
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("output %q: got %v, want a ConfigurationError", name, err)
		}
	}
}

func TestTagAllExistsEagerly(t *testing.T) {
	g := New()
	all, err := g.FindAlias("tags/all")
	if err != nil {
		t.Fatal(err)
	}
	if all.Name != "tags/all" {
		t.Errorf("name = %q", all.Name)
	}
}

// Duplicate tag edges are append-only by design: the same target attached
// twice must appear twice.
func TestAttachTagsKeepsDuplicates(t *testing.T) {
	g := New()
	target := &Target{Kind: KindCopy, Outputs: []string{"a"}}
	if err := g.Register(target); err != nil {
		t.Fatal(err)
	}

	if err := g.AttachToTags(target, []string{"docs"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AttachToTags(target, []string{"docs"}); err != nil {
		t.Fatal(err)
	}

	alias, err := g.Tag("docs")
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, dep := range alias.ImplicitInputs {
		if dep.Target() == target {
			count++
		}
	}
	if count != 2 {
		t.Errorf("target appears %d times under tags/docs, want exactly 2", count)
	}
}

func TestFindAlias(t *testing.T) {
	g := New()
	foo := &Target{Kind: KindAlias, Name: "lib/foo", Outputs: []string{"lib/foo"}}
	foobar := &Target{Kind: KindAlias, Name: "lib/foobar", Outputs: []string{"lib/foobar"}}
	for _, a := range []*Target{foo, foobar} {
		if err := g.Register(a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := g.FindAlias("foo")
	if err != nil {
		t.Fatal(err)
	}
	if got != foo {
		t.Errorf("pattern foo resolved to %q, want lib/foo", got.Name)
	}

	got, err = g.FindAlias("lib/foobar")
	if err != nil {
		t.Fatal(err)
	}
	if got != foobar {
		t.Errorf("pattern lib/foobar resolved to %q", got.Name)
	}

	if _, err := g.FindAlias("foo.*"); err == nil {
		t.Fatal("pattern matching both aliases must fail with an ambiguity error")
	}

	if _, err := g.FindAlias("nothing"); err == nil {
		t.Fatal("pattern matching no alias must fail")
	}
}

func TestDepPaths(t *testing.T) {
	target := &Target{Outputs: []string{"a.o", "a.d"}}
	if got := TargetRef(target).Paths(); len(got) != 2 || got[0] != "a.o" {
		t.Errorf("TargetRef paths = %v", got)
	}
	if got := PathRef("x.c").Paths(); len(got) != 1 || got[0] != "x.c" {
		t.Errorf("PathRef paths = %v", got)
	}
}
