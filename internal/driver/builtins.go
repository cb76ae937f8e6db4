package driver

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.starlark.net/starlark"

	"github.com/genja-build/genja/internal/conf"
	"github.com/genja-build/genja/internal/graph"
	"github.com/genja-build/genja/internal/ninja"
)

// predeclared is the whole vocabulary a script sees. Every builtin closes
// over the driver and reads the scope that is current at call time.
func (d *Driver) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"subdir":         starlark.NewBuiltin("subdir", d.builtinSubdir),
		"project":        starlark.NewBuiltin("project", d.builtinProject),
		"command":        starlark.NewBuiltin("command", d.builtinCommand),
		"copy":           starlark.NewBuiltin("copy", d.builtinCopy),
		"compile":        starlark.NewBuiltin("compile", d.builtinCompile),
		"link":           starlark.NewBuiltin("link", d.builtinLink),
		"alias":          starlark.NewBuiltin("alias", d.builtinAlias),
		"find_target":    starlark.NewBuiltin("find_target", d.builtinFindTarget),
		"extend_config":  starlark.NewBuiltin("extend_config", d.builtinExtendConfig),
		"config":         starlark.NewBuiltin("config", d.builtinConfig),
		"glob":           starlark.NewBuiltin("glob", d.builtinGlob),
		"mark_generated": starlark.NewBuiltin("mark_generated", d.builtinMarkGenerated),
		"reconfigure_on": starlark.NewBuiltin("reconfigure_on", d.builtinReconfigureOn),
		"patch_file":     starlark.NewBuiltin("patch_file", d.builtinPatchFile),
		"getenv":         starlark.NewBuiltin("getenv", d.builtinGetenv),
	}
}

func (d *Driver) builtinSubdir(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rel string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &rel); err != nil {
		return nil, err
	}
	globals, err := d.enterSubdir(rel)
	if err != nil {
		return nil, err
	}

	// Hand the subdirectory's exported globals back to the caller; names
	// starting with an underscore stay private to the script.
	exported := starlark.NewDict(len(globals))
	for name, value := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if err := exported.SetKey(starlark.String(name), value); err != nil {
			return nil, err
		}
	}
	return exported, nil
}

func (d *Driver) builtinProject(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "fn", &fn); err != nil {
		return nil, err
	}
	if err := d.enterProject(thread, name, fn); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (d *Driver) builtinCommand(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		outputsV, depsV, commandV, commandsV   starlark.Value
		implicitOutsV, implicitDepsV, orderV   starlark.Value
		envV, tagsV                            starlark.Value
		cwd, depfilePath, pool, desc, partName string
	)
	err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"outputs", &outputsV,
		"deps?", &depsV,
		"command?", &commandV,
		"commands?", &commandsV,
		"implicit_outputs?", &implicitOutsV,
		"implicit_deps?", &implicitDepsV,
		"order_only?", &orderV,
		"cwd?", &cwd,
		"depfile?", &depfilePath,
		"pool?", &pool,
		"env?", &envV,
		"tags?", &tagsV,
		"description?", &desc,
		"partition?", &partName,
	)
	if err != nil {
		return nil, err
	}

	outputs, err := d.outputList(outputsV)
	if err != nil {
		return nil, err
	}

	if (commandV == nil) == (commandsV == nil) {
		return nil, &graph.ConfigurationError{
			Target: firstOr(outputs, "<command>"),
			Msg:    "exactly one of command= or commands= must be given",
		}
	}

	var commands []string
	if commandV != nil {
		line, err := commandText(commandV)
		if err != nil {
			return nil, err
		}
		commands = []string{line}
	} else {
		seq, ok := sequenceItems(commandsV)
		if !ok {
			return nil, fmt.Errorf("commands= must be a list of command lines")
		}
		for _, item := range seq {
			line, err := commandText(item)
			if err != nil {
				return nil, err
			}
			commands = append(commands, line)
		}
	}

	deps, err := depList(depsV)
	if err != nil {
		return nil, err
	}
	implicitDeps, err := depList(implicitDepsV)
	if err != nil {
		return nil, err
	}
	orderOnly, err := depList(orderV)
	if err != nil {
		return nil, err
	}
	implicitOuts, err := stringList(implicitOutsV)
	if err != nil {
		return nil, err
	}
	envMap, err := stringMap(envV)
	if err != nil {
		return nil, err
	}

	if cwd == "" {
		cwd = d.srcDir()
	}

	t := &graph.Target{
		Kind:            graph.KindCommand,
		Outputs:         outputs,
		ImplicitOutputs: d.outputPaths(implicitOuts),
		Inputs:          deps,
		ImplicitInputs:  implicitDeps,
		OrderOnlyInputs: orderOnly,
		Commands:        commands,
		Cwd:             cwd,
		Depfile:         depfilePath,
		Pool:            pool,
		Env:             envMap,
		Description:     desc,
		Partition:       partName,
	}
	return d.finish(t, tagsV)
}

func (d *Driver) builtinCopy(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dest, src, partName string
	var tagsV starlark.Value
	err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"dest", &dest, "src", &src, "tags?", &tagsV, "partition?", &partName)
	if err != nil {
		return nil, err
	}

	t := &graph.Target{
		Kind:      graph.KindCopy,
		Outputs:   []string{d.outputPath(dest)},
		Inputs:    []graph.Dep{graph.PathRef(d.sourcePath(src))},
		Partition: partName,
	}
	return d.finish(t, tagsV)
}

func (d *Driver) builtinCompile(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		output, compiler, root, partName string
		sourceV, flagsV, depsV, tagsV    starlark.Value
	)
	err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"output", &output,
		"source", &sourceV,
		"flags?", &flagsV,
		"compiler?", &compiler,
		"root?", &root,
		"deps?", &depsV,
		"tags?", &tagsV,
		"partition?", &partName,
	)
	if err != nil {
		return nil, err
	}

	src, ok := starlark.AsString(sourceV)
	if !ok || src == "" {
		return nil, &graph.ConfigurationError{Target: output, Msg: "compile takes exactly one source file"}
	}
	flags, err := stringList(flagsV)
	if err != nil {
		return nil, err
	}
	deps, err := depList(depsV)
	if err != nil {
		return nil, err
	}
	if compiler == "" {
		compiler = d.defaultCompiler(src)
	}
	if compiler == "" {
		return nil, &graph.ConfigurationError{Target: output, Msg: "no compiler configured and none found on the host"}
	}
	if root == "" {
		root = d.buildRoot
	}

	t := &graph.Target{
		Kind:           graph.KindCompile,
		Outputs:        []string{d.outputPath(output)},
		Inputs:         []graph.Dep{graph.PathRef(d.sourcePath(src))},
		ImplicitInputs: deps,
		Compiler:       compiler,
		Flags:          flags,
		RootDir:        root,
		Partition:      partName,
	}
	return d.finish(t, tagsV)
}

func (d *Driver) builtinLink(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		output, compiler, partName string
		objectsV, flagsV, tagsV    starlark.Value
	)
	err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"output", &output,
		"objects", &objectsV,
		"flags?", &flagsV,
		"compiler?", &compiler,
		"tags?", &tagsV,
		"partition?", &partName,
	)
	if err != nil {
		return nil, err
	}

	objects, err := depList(objectsV)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, &graph.ConfigurationError{Target: output, Msg: "link takes a non-empty object list"}
	}
	flags, err := stringList(flagsV)
	if err != nil {
		return nil, err
	}
	if compiler == "" {
		compiler = d.configString("cc", "cxxpath")
	}
	if compiler == "" {
		compiler = d.configString("cc", "path")
	}
	if compiler == "" {
		return nil, &graph.ConfigurationError{Target: output, Msg: "no linker configured and none found on the host"}
	}

	t := &graph.Target{
		Kind:      graph.KindLink,
		Outputs:   []string{d.outputPath(output)},
		Inputs:    objects,
		Compiler:  compiler,
		Flags:     flags,
		Partition: partName,
	}
	return d.finish(t, tagsV)
}

func (d *Driver) builtinAlias(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, partName string
	var depsV, inheritV, tagsV starlark.Value
	err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name,
		"deps?", &depsV,
		"inherit_metadata?", &inheritV,
		"tags?", &tagsV,
		"partition?", &partName,
	)
	if err != nil {
		return nil, err
	}

	full := name
	if ns := d.scope().namespace; ns != "" {
		full = ns + "/" + name
	}

	deps, err := depList(depsV)
	if err != nil {
		return nil, err
	}
	inherit, err := stringList(inheritV)
	if err != nil {
		return nil, err
	}

	t := &graph.Target{
		Kind:      graph.KindAlias,
		Name:      full,
		Outputs:   []string{full},
		Inputs:    deps,
		Partition: partName,
	}

	if len(inherit) > 0 {
		if len(deps) != 1 {
			return nil, &graph.ConfigurationError{
				Target: full,
				Msg:    fmt.Sprintf("inherit_metadata requires exactly one dependency, got %d", len(deps)),
			}
		}
		src := deps[0].Target()
		if src == nil {
			return nil, &graph.ConfigurationError{Target: full, Msg: "inherit_metadata requires a target dependency, not a path"}
		}
		for _, key := range inherit {
			if v, ok := src.MetadataValue(key); ok {
				t.SetMetadata(key, v)
			}
		}
	}

	return d.finish(t, tagsV)
}

func (d *Driver) builtinFindTarget(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern); err != nil {
		return nil, err
	}
	t, err := d.graph.FindAlias(pattern)
	if err != nil {
		return nil, err
	}
	return targetHandle{t: t}, nil
}

func (d *Driver) builtinExtendConfig(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deltaV starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "delta", &deltaV); err != nil {
		return nil, err
	}
	delta, err := confFromStarlark(thread, deltaV)
	if err != nil {
		return nil, err
	}
	if err := d.extendConfig(delta); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (d *Driver) builtinConfig(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var keyPath string
	var defaultV starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path?", &keyPath, "default?", &defaultV); err != nil {
		return nil, err
	}
	if keyPath == "" {
		return confToStarlark(d.config), nil
	}
	v, ok := d.config.Lookup(strings.Split(keyPath, "."))
	if !ok {
		return defaultV, nil
	}
	return confToStarlark(v), nil
}

func (d *Driver) builtinGlob(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern); err != nil {
		return nil, err
	}

	dir := d.srcDir()
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(matches)

	items := make([]starlark.Value, len(matches))
	for i, m := range matches {
		items[i] = starlark.String(filepath.Join(dir, filepath.FromSlash(m)))
	}
	return starlark.NewList(items), nil
}

func (d *Driver) builtinMarkGenerated(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "file", &file); err != nil {
		return nil, err
	}
	d.graph.Reconfigure().AddOutput(d.outputPath(file))
	return starlark.None, nil
}

func (d *Driver) builtinReconfigureOn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "file", &file); err != nil {
		return nil, err
	}
	d.graph.Reconfigure().AddInput(graph.PathRef(d.sourcePath(file)))
	return starlark.None, nil
}

// builtinPatchFile applies a unified patch text to a file under the current
// source scope. Reports whether any hunk applied.
func (d *Driver) builtinPatchFile(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file, patchText string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &file, "patch", &patchText); err != nil {
		return nil, err
	}

	full := d.sourcePath(file)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return nil, fmt.Errorf("parse patch for %s: %w", file, err)
	}
	patched, results := dmp.PatchApply(patches, string(data))

	applied := false
	for _, ok := range results {
		applied = applied || ok
	}
	if !applied {
		return starlark.False, nil
	}

	if err := os.WriteFile(full, []byte(patched), 0o644); err != nil {
		return nil, err
	}
	return starlark.True, nil
}

func (d *Driver) builtinGetenv(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, fallback string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &fallback); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv(name); ok {
		return starlark.String(v), nil
	}
	return starlark.String(fallback), nil
}

// finish registers a built target, attaches its tags (defaulting to "all"),
// and wraps it into a script handle.
func (d *Driver) finish(t *graph.Target, tagsV starlark.Value) (starlark.Value, error) {
	if err := d.graph.Register(t); err != nil {
		return nil, err
	}
	tags := []string{graph.TagAll}
	if tagsV != nil {
		var err error
		if tags, err = stringList(tagsV); err != nil {
			return nil, err
		}
	}
	if err := d.graph.AttachToTags(t, tags); err != nil {
		return nil, err
	}
	return targetHandle{t: t}, nil
}

// outputPath maps a script-declared output to its build-directory-relative
// path: relative names land in the mirror of the current source scope.
func (d *Driver) outputPath(out string) string {
	if filepath.IsAbs(out) {
		return out
	}
	return path.Join(d.scope().relPath, filepath.ToSlash(out))
}

func (d *Driver) outputPaths(outs []string) []string {
	mapped := make([]string, len(outs))
	for i, out := range outs {
		mapped[i] = d.outputPath(out)
	}
	return mapped
}

func (d *Driver) outputList(v starlark.Value) ([]string, error) {
	outs, err := stringList(v)
	if err != nil {
		return nil, err
	}
	return d.outputPaths(outs), nil
}

// sourcePath maps a script-referenced input to an absolute path under the
// current source scope.
func (d *Driver) sourcePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.srcDir(), p)
}

func (d *Driver) configString(path ...string) string {
	v, ok := d.config.Lookup(path)
	if !ok || v.Kind() != conf.KindString {
		return ""
	}
	return v.StringVal()
}

// defaultCompiler picks the configured C++ compiler for C++ sources and the
// C compiler otherwise.
func (d *Driver) defaultCompiler(source string) string {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".cpp", ".cc", ".cxx", ".c++", ".mm":
		if cxx := d.configString("cc", "cxxpath"); cxx != "" {
			return cxx
		}
	}
	return d.configString("cc", "path")
}

func firstOr(items []string, fallback string) string {
	if len(items) > 0 {
		return items[0]
	}
	return fallback
}

// commandText accepts a command line either as a raw shell string or as a
// list of argument tokens to be shell-escaped and joined.
func commandText(v starlark.Value) (string, error) {
	if s, ok := starlark.AsString(v); ok {
		return s, nil
	}
	if items, ok := sequenceItems(v); ok {
		tokens := make([]string, len(items))
		for i, item := range items {
			s, ok := starlark.AsString(item)
			if !ok {
				return "", fmt.Errorf("command token %d is %s, want string", i, item.Type())
			}
			tokens[i] = s
		}
		return ninja.ShellJoin(tokens), nil
	}
	return "", fmt.Errorf("command must be a string or a list of argument tokens, got %s", v.Type())
}
