// Package driver walks the configuration script tree. It owns the scope
// stack, evaluates every build.genja with the target-declaration builtins
// bound to the current scope, and accumulates the merged configuration and
// the target graph along the way.
package driver

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.starlark.net/starlark"

	"github.com/genja-build/genja/internal/cc"
	"github.com/genja-build/genja/internal/conf"
	"github.com/genja-build/genja/internal/graph"
	"github.com/genja-build/genja/internal/msg"
)

// ScriptName is the per-directory configuration script, by convention.
const ScriptName = "build.genja"

// ScriptError wraps a script that is missing or failed to evaluate.
type ScriptError struct {
	Path string
	Err  error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s: %v", e.Path, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// scope is the active compilation scope. A fresh copy is pushed on every
// subdirectory or project entry and popped on exit, so nested scripts cannot
// leak scope mutations into ancestors.
type scope struct {
	// relPath is the current source subdirectory, slash-separated,
	// relative to the source root.
	relPath string
	// namespace is the slash-joined logical project name qualifying
	// alias names.
	namespace string
}

type Driver struct {
	srcRoot   string
	buildRoot string

	graph  *graph.Graph
	config conf.Value
	env    conf.Env

	scopes []scope
}

// New prepares a driver for a configure pass rooted at srcRoot, emitting
// into buildRoot. Both are made absolute so scripts can be evaluated from
// any working directory.
func New(srcRoot, buildRoot string) (*Driver, error) {
	var err error
	if srcRoot, err = filepath.Abs(srcRoot); err != nil {
		return nil, err
	}
	if buildRoot, err = filepath.Abs(buildRoot); err != nil {
		return nil, err
	}

	d := &Driver{
		srcRoot:   srcRoot,
		buildRoot: buildRoot,
		graph:     graph.New(),
		env:       conf.NewEnv(srcRoot),
		scopes:    []scope{{}},
	}
	d.config = conf.Record(map[string]conf.Value{
		"cc": conf.Record(map[string]conf.Value{
			"path":    conf.String(cc.Find(false)),
			"cxxpath": conf.String(cc.Find(true)),
		}),
	})
	return d, nil
}

func (d *Driver) Graph() *graph.Graph { return d.graph }
func (d *Driver) Config() conf.Value  { return d.config }
func (d *Driver) BuildRoot() string   { return d.buildRoot }
func (d *Driver) SourceRoot() string  { return d.srcRoot }

// Run executes the configure pass: preload scripts first, then the source
// tree from its root script.
func (d *Driver) Run(preloads []string) error {
	if err := os.MkdirAll(d.buildRoot, 0o755); err != nil {
		return err
	}

	for _, preload := range preloads {
		abs, err := filepath.Abs(preload)
		if err != nil {
			return err
		}
		d.graph.Reconfigure().AddInput(graph.PathRef(abs))
		if _, err := d.evalScript(abs); err != nil {
			return err
		}
	}

	_, err := d.enterSubdir("")
	return err
}

func (d *Driver) scope() *scope { return &d.scopes[len(d.scopes)-1] }

func (d *Driver) push(s scope) { d.scopes = append(d.scopes, s) }
func (d *Driver) pop()         { d.scopes = d.scopes[:len(d.scopes)-1] }

// srcDir is the absolute directory of the current source scope.
func (d *Driver) srcDir() string {
	return filepath.Join(d.srcRoot, filepath.FromSlash(d.scope().relPath))
}

// enterSubdir pushes a scope extended by rel, mirrors the subdirectory under
// the build root, evaluates its script, and pops. The scope is restored on
// every exit path, a failing script included. The script's exported globals
// are handed back to the caller; that is the only channel through which a
// nested scope reaches its parent.
func (d *Driver) enterSubdir(rel string) (starlark.StringDict, error) {
	next := scope{
		relPath:   path.Join(d.scope().relPath, rel),
		namespace: d.scope().namespace,
	}
	d.push(next)
	defer d.pop()

	if err := os.MkdirAll(filepath.Join(d.buildRoot, filepath.FromSlash(next.relPath)), 0o755); err != nil {
		return nil, err
	}

	script := filepath.Join(d.srcDir(), ScriptName)
	d.graph.Reconfigure().AddInput(graph.PathRef(script))
	return d.evalScript(script)
}

// enterProject pushes a scope whose namespace is extended by name and runs
// fn inside it. Purely a naming operation; the filesystem is untouched.
func (d *Driver) enterProject(thread *starlark.Thread, name string, fn starlark.Callable) error {
	ns := name
	if cur := d.scope().namespace; cur != "" {
		ns = cur + "/" + name
	}
	d.push(scope{relPath: d.scope().relPath, namespace: ns})
	defer d.pop()

	_, err := starlark.Call(thread, fn, nil, nil)
	return err
}

// evalScript loads and executes one Starlark script with the driver API
// predeclared. Scripts are sandboxed: the builtins are their only way to
// touch the process.
func (d *Driver) evalScript(scriptPath string) (starlark.StringDict, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, &ScriptError{Path: scriptPath, Err: err}
	}

	thread := &starlark.Thread{
		Name: scriptPath,
		Print: func(_ *starlark.Thread, m string) {
			msg.Info("%s: %s", scriptPath, m)
		},
	}

	globals, err := starlark.ExecFile(thread, scriptPath, src, d.predeclared())
	if err != nil {
		return nil, &ScriptError{Path: scriptPath, Err: err}
	}
	return globals, nil
}

// extendConfig merges a delta into the running configuration, expanding
// {{...}} expressions in its string scalars first.
func (d *Driver) extendConfig(delta conf.Value) error {
	expanded, err := d.env.Expand(delta)
	if err != nil {
		return err
	}
	merged, err := conf.Merge(d.config, expanded)
	if err != nil {
		return err
	}
	d.config = merged
	return nil
}
