package graph

import (
	"fmt"
	"regexp"
)

// ConfigurationError reports a malformed target declaration. It always
// aborts the configure pass; there is no partial graph to recover.
type ConfigurationError struct {
	Target string
	Msg    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("target %s: %s", e.Target, e.Msg)
}

func configErrf(target, format string, a ...any) error {
	return &ConfigurationError{Target: target, Msg: fmt.Sprintf(format, a...)}
}

// TagAll is the eagerly created default tag; "tags/all" is the default goal
// of every emitted build file.
const TagAll = "all"

const tagPrefix = "tags/"

// Graph holds every target in registration order plus the alias and tag
// indexes.
type Graph struct {
	targets []*Target
	aliases map[string]*Target
	tags    map[string]*Target
	outputs map[string]*Target

	reconfigure *Target
}

func New() *Graph {
	g := &Graph{
		aliases: make(map[string]*Target),
		tags:    make(map[string]*Target),
		outputs: make(map[string]*Target),
	}

	g.reconfigure = &Target{Kind: KindReconfigure}

	// The "all" tag exists even in an empty project so the default goal
	// always resolves.
	if _, err := g.Tag(TagAll); err != nil {
		panic(err) // empty graph cannot collide
	}
	return g
}

// Targets returns all registered targets in registration order. The
// reconfigure target is not part of the list; the serializer emits it
// separately once its output set is final.
func (g *Graph) Targets() []*Target { return g.targets }

// Reconfigure returns the synthetic self-reconfiguration target.
func (g *Graph) Reconfigure() *Target { return g.reconfigure }

// reservedOutputs are claimed by the meta-statements every emitted build file
// carries; a user target producing one would duplicate that statement.
var reservedOutputs = map[string]bool{"clean": true, "help": true}

// Register appends a target to the graph, enforcing non-empty and globally
// unique outputs. Alias targets are additionally indexed by name.
func (g *Graph) Register(t *Target) error {
	if len(t.Outputs) == 0 {
		return configErrf(t.ID(), "declared with no outputs")
	}
	for _, out := range t.Outputs {
		if reservedOutputs[out] {
			return configErrf(t.ID(), "output %q is a reserved name", out)
		}
		if prev, dup := g.outputs[out]; dup {
			return configErrf(t.ID(), "output %q already produced by target %s", out, prev.ID())
		}
	}
	if t.Kind == KindAlias {
		if _, dup := g.aliases[t.Name]; dup {
			return configErrf(t.Name, "alias name already taken")
		}
		g.aliases[t.Name] = t
	}
	for _, out := range t.Outputs {
		g.outputs[out] = t
	}
	g.targets = append(g.targets, t)
	return nil
}

// Tag returns the alias target grouping everything registered under the
// given tag, creating it on first use.
func (g *Graph) Tag(tag string) (*Target, error) {
	if t, ok := g.tags[tag]; ok {
		return t, nil
	}
	t := &Target{
		Kind:    KindAlias,
		Name:    tagPrefix + tag,
		Outputs: []string{tagPrefix + tag},
	}
	if err := g.Register(t); err != nil {
		return nil, err
	}
	g.tags[tag] = t
	return t, nil
}

// AttachToTags appends the target to each tag's alias. Repeated attachment
// appends a duplicate edge on purpose: the executor treats duplicate
// prerequisites as harmless, and deduplicating would hide script bugs.
func (g *Graph) AttachToTags(t *Target, tags []string) error {
	for _, tag := range tags {
		alias, err := g.Tag(tag)
		if err != nil {
			return err
		}
		alias.AddImplicitInput(TargetRef(t))
	}
	return nil
}

// FindAlias resolves a pattern to exactly one alias. The pattern must match
// a whole alias name or the whole last slash-separated segment of one; zero
// or multiple matches fail.
func (g *Graph) FindAlias(pattern string) (*Target, error) {
	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return nil, configErrf(pattern, "bad target pattern: %v", err)
	}

	var found *Target
	for name, t := range g.aliases {
		if !re.MatchString(name) && !re.MatchString(lastSegment(name)) {
			continue
		}
		if found != nil && found != t {
			return nil, configErrf(pattern, "pattern is ambiguous: matches %s and %s", found.Name, t.Name)
		}
		found = t
	}
	if found == nil {
		return nil, configErrf(pattern, "no alias matches pattern")
	}
	return found, nil
}

func lastSegment(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
