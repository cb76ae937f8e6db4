package conf

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
	git "github.com/go-git/go-git/v6"
)

// Env is the environment visible to {{...}} expressions embedded in string
// configuration values.
type Env struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
	GitRev     string            `expr:"git_rev"`
	GitBranch  string            `expr:"git_branch"`
}

// NewEnv builds the expression environment for a source root. The git fields
// stay empty when the root is not inside a repository.
func NewEnv(srcRoot string) Env {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	env := Env{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
	}

	repo, err := git.PlainOpenWithOptions(srcRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return env
	}
	head, err := repo.Head()
	if err != nil {
		return env
	}
	env.GitRev = head.Hash().String()
	if head.Name().IsBranch() {
		env.GitBranch = head.Name().Short()
	}
	return env
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// ExpandString evaluates every {{...}} fragment in s against the environment
// and splices the results back in.
func (env Env) ExpandString(s string) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, m := range matches {
		builder.WriteString(s[lastIndex:m[0]])

		expression := strings.TrimSpace(s[m[2]:m[3]])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("compile expression %q: %w", expression, err)
		}
		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("evaluate expression %q: %w", expression, err)
		}

		builder.WriteString(fmt.Sprintf("%v", result))
		lastIndex = m[1]
	}

	builder.WriteString(s[lastIndex:])
	return builder.String(), nil
}

// Expand walks a value and expands expressions in every string scalar.
func (env Env) Expand(v Value) (Value, error) {
	switch v.kind {
	case KindString:
		expanded, err := env.ExpandString(v.s)
		if err != nil {
			return Value{}, err
		}
		return String(expanded), nil
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			expanded, err := env.Expand(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = expanded
		}
		return List(items...), nil
	case KindRecord:
		fields := make(map[string]Value, len(v.rec))
		for k, item := range v.rec {
			expanded, err := env.Expand(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = expanded
		}
		return Record(fields), nil
	default:
		return v, nil
	}
}
