// Package ninja renders the target graph into ninja-syntax build files.
package ninja

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/genja-build/genja/internal/graph"
	"github.com/genja-build/genja/internal/msg"
)

const (
	// RootFile is the root partition's output file; it is always written
	// last so its default-goal and meta-rules see fully populated tags.
	RootFile  = "build.ninja"
	RulesFile = "rules.ninja"
)

// File is one rendered output partition.
type File struct {
	Name string
	Data []byte
}

// Serializer renders a graph. SelfCommand is the argv that reruns the
// configure pass (used by the reconfigure rule); SnapshotFile is the
// configuration snapshot's name inside the build directory.
type Serializer struct {
	SelfCommand  []string
	SnapshotFile string
}

// Serialize renders every partition. The returned slice is in write order:
// rules file, named partitions in first-use order, root file last.
func (s *Serializer) Serialize(g *graph.Graph) ([]File, error) {
	parts := map[string]*strings.Builder{"": {}}
	order := []string{""}
	partition := func(name string) *strings.Builder {
		sb, ok := parts[name]
		if !ok {
			sb = &strings.Builder{}
			parts[name] = sb
			order = append(order, name)
		}
		return sb
	}

	for _, t := range g.Targets() {
		if err := emitTarget(partition(t.Partition), t); err != nil {
			err = fmt.Errorf("serialize target %s: %w", t.ID(), err)
			msg.Error("%v", err)
			return nil, err
		}
	}

	// The reconfigure target's full output list is known only now that every
	// partition is; render it on a copy so the graph stays untouched and a
	// second Serialize sees the same state.
	reconf := *g.Reconfigure()
	outputs := []string{RootFile, RulesFile}
	for _, name := range order[1:] {
		outputs = append(outputs, partitionFile(name))
	}
	if s.SnapshotFile != "" {
		outputs = append(outputs, s.SnapshotFile)
	}
	reconf.Outputs = append(outputs, reconf.Outputs...)

	files := []File{{Name: RulesFile, Data: []byte(s.rulesText())}}
	for _, name := range order[1:] {
		files = append(files, File{
			Name: partitionFile(name),
			Data: []byte(preamble + parts[name].String()),
		})
	}

	var root strings.Builder
	write(&root, preamble)
	writeln(&root, "ninja_required_version = 1.3")
	writeln(&root, "include ", EscapePath(RulesFile))
	for _, name := range order[1:] {
		writeln(&root, "subninja ", EscapePath(partitionFile(name)))
	}
	writeln(&root)
	write(&root, parts[""].String())

	if err := emitReconfigure(&root, &reconf, s.SelfCommand); err != nil {
		msg.Error("serialize target %s: %v", reconf.ID(), err)
		return nil, fmt.Errorf("serialize target %s: %w", reconf.ID(), err)
	}

	writeln(&root, "build clean: clean")
	writeln(&root, "build help: help")
	writeln(&root)
	writeln(&root, "default ", EscapePath("tags/"+graph.TagAll))

	files = append(files, File{Name: RootFile, Data: []byte(root.String())})
	return files, nil
}

// WriteFiles serializes the graph and writes each partition into dir, root
// file last.
func (s *Serializer) WriteFiles(dir string, g *graph.Graph) error {
	files, err := s.Serialize(g)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func partitionFile(name string) string { return name + ".ninja" }

const preamble = "# generated by genja, do not edit\n\n"

func (s *Serializer) rulesText() string {
	var sb strings.Builder
	write(&sb, preamble)
	self := "genja"
	if len(s.SelfCommand) > 0 {
		self = ShellEscape(s.SelfCommand[0])
	}
	write(&sb, `rule cc
  command = $cc $flags -MD -MF $out.d -c $in -o $out && `+EscapeAssign(self)+` depfile $root $out.d
  depfile = $out.d
  description = CC $out

rule link
  command = $cc $flags -o $out $in
  description = LINK $out

rule copy
  command = cp $in $out
  description = COPY $out

rule cmd
  command = $cmd
  description = $desc

rule configure
  command = $cmd
  description = RECONFIGURE
  generator = 1
  pool = console

rule clean
  command = ninja -t clean
  description = CLEAN

rule help
  command = ninja -t targets
  description = HELP
`)
	return sb.String()
}

// emitHeader writes the `build outs | imp_outs: rule ins | imp_ins || oo`
// statement line.
func emitHeader(sb *strings.Builder, t *graph.Target, rule string) {
	write(sb, "build")
	for _, out := range t.Outputs {
		write(sb, " ", EscapePath(out))
	}
	if len(t.ImplicitOutputs) > 0 {
		write(sb, " |")
		for _, out := range t.ImplicitOutputs {
			write(sb, " ", EscapePath(out))
		}
	}
	write(sb, ": ", rule)
	writeDeps(sb, "", t.Inputs)
	writeDeps(sb, " |", t.ImplicitInputs)
	writeDeps(sb, " ||", t.OrderOnlyInputs)
	writeln(sb)
}

func writeDeps(sb *strings.Builder, marker string, deps []graph.Dep) {
	if len(deps) == 0 {
		return
	}
	write(sb, marker)
	for _, d := range deps {
		for _, p := range d.Paths() {
			write(sb, " ", EscapePath(p))
		}
	}
}

func emitVar(sb *strings.Builder, key, value string) {
	if value != "" {
		writeln(sb, "  ", key, " = ", value)
	}
}

func emitTarget(sb *strings.Builder, t *graph.Target) error {
	switch t.Kind {
	case graph.KindAlias:
		emitHeader(sb, t, "phony")

	case graph.KindCommand:
		emitHeader(sb, t, "cmd")
		emitVar(sb, "cmd", commandLine(t))
		emitVar(sb, "desc", t.Description)
		emitVar(sb, "depfile", EscapePath(t.Depfile))
		emitVar(sb, "pool", t.Pool)

	case graph.KindCompile:
		emitHeader(sb, t, "cc")
		emitVar(sb, "cc", EscapeAssign(ShellEscape(t.Compiler)))
		emitVar(sb, "flags", EscapeAssign(ShellJoin(t.Flags)))
		emitVar(sb, "root", EscapeAssign(ShellEscape(t.RootDir)))

	case graph.KindLink:
		emitHeader(sb, t, "link")
		emitVar(sb, "cc", EscapeAssign(ShellEscape(t.Compiler)))
		emitVar(sb, "flags", EscapeAssign(ShellJoin(t.Flags)))

	case graph.KindCopy:
		emitHeader(sb, t, "copy")

	default:
		return fmt.Errorf("unknown target kind %s", t.Kind)
	}
	writeln(sb)
	return nil
}

// commandLine assembles a command target's shell line: enter the working
// directory, export the environment overrides, then chain the command lines
// with the success operator.
func commandLine(t *graph.Target) string {
	var parts []string
	if t.Cwd != "" {
		parts = append(parts, "cd "+ShellEscape(t.Cwd))
	}

	keys := make([]string, 0, len(t.Env))
	for k := range t.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, "export "+k+"="+ShellEscape(t.Env[k]))
	}

	parts = append(parts, t.Commands...)
	return EscapeAssign(strings.Join(parts, " && "))
}

func emitReconfigure(sb *strings.Builder, t *graph.Target, selfCmd []string) error {
	if len(t.Outputs) == 0 {
		return fmt.Errorf("reconfigure target has no outputs")
	}
	emitHeader(sb, t, "configure")
	cmd := ShellJoin(selfCmd)
	if cmd == "" {
		cmd = "genja"
	}
	emitVar(sb, "cmd", EscapeAssign(cmd))
	writeln(sb)
	return nil
}

func write(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
}

func writeln(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
	sb.WriteByte('\n')
}
