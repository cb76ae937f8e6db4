// Package graph is the in-memory build graph: typed targets, their
// dependency edges, the tag aliases, and the named-target registry. It is
// populated by the driver during the configure pass and read once by the
// serializer; nothing mutates it afterwards.
package graph

// TargetKind selects a target's emission behavior.
type TargetKind uint8

const (
	// KindAlias is a phony grouping target with no build action.
	KindAlias TargetKind = iota
	// KindCommand runs one or more shell command lines in sequence.
	KindCommand
	// KindCompile compiles a single source file into an object file.
	KindCompile
	// KindLink links a list of object files into an artifact.
	KindLink
	// KindCopy copies a single input to a single output.
	KindCopy
	// KindReconfigure is the synthetic target that reruns the configure
	// pass whenever any configuration script changes.
	KindReconfigure
)

func (k TargetKind) String() string {
	switch k {
	case KindAlias:
		return "alias"
	case KindCommand:
		return "command"
	case KindCompile:
		return "compile"
	case KindLink:
		return "link"
	case KindCopy:
		return "copy"
	case KindReconfigure:
		return "reconfigure"
	}
	return "invalid"
}

// Dep is one dependency edge: either a reference to another target (resolved
// to that target's outputs at serialization time) or a raw path.
type Dep struct {
	target *Target
	path   string
}

func TargetRef(t *Target) Dep { return Dep{target: t} }
func PathRef(path string) Dep { return Dep{path: path} }

// Target returns the referenced target, or nil for a path reference.
func (d Dep) Target() *Target { return d.target }

// Paths resolves the dependency to its concrete path list.
func (d Dep) Paths() []string {
	if d.target != nil {
		return d.target.Outputs
	}
	return []string{d.path}
}

// Target is a single build step. Outputs must be non-empty and globally
// unique; Inputs order is significant (positional compiler arguments).
type Target struct {
	Kind            TargetKind
	Outputs         []string
	ImplicitOutputs []string
	Inputs          []Dep
	ImplicitInputs  []Dep
	OrderOnlyInputs []Dep
	Metadata        map[string]any

	// Partition routes the target's build statement to a named output
	// file; empty means the root partition.
	Partition string

	// Name is the fully qualified alias name (alias kind only).
	Name string

	// Command targets.
	Commands []string
	Cwd      string
	Depfile  string
	Pool     string
	Env      map[string]string

	// Compile and link targets.
	Compiler string
	Flags    []string
	RootDir  string

	Description string
}

// AddInput appends a dependency edge. Alias targets accumulate members this
// way; the reconfigure target accumulates script paths.
func (t *Target) AddInput(d Dep) { t.Inputs = append(t.Inputs, d) }

// AddImplicitInput appends an implicit dependency edge (tag membership).
func (t *Target) AddImplicitInput(d Dep) { t.ImplicitInputs = append(t.ImplicitInputs, d) }

// AddOutput appends an output path (reconfigure target bookkeeping only;
// regular targets are immutable after registration).
func (t *Target) AddOutput(path string) { t.Outputs = append(t.Outputs, path) }

// SetMetadata stores an opaque value other targets may read, e.g. for alias
// metadata inheritance.
func (t *Target) SetMetadata(key string, value any) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata[key] = value
}

// MetadataValue reads a metadata field.
func (t *Target) MetadataValue(key string) (any, bool) {
	v, ok := t.Metadata[key]
	return v, ok
}

// ID identifies the target in error messages: its alias name if it has one,
// otherwise its first output.
func (t *Target) ID() string {
	if t.Name != "" {
		return t.Name
	}
	if len(t.Outputs) > 0 {
		return t.Outputs[0]
	}
	return "<no outputs>"
}
