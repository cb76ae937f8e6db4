package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// EnumValue is a pflag.Value restricted to a fixed set of strings, each with
// a help line for shell completion.
type EnumValue struct {
	value   string
	allowed map[string]string // value -> help text
}

func NewEnumValue(defaultVal string, allowed map[string]string) EnumValue {
	if _, ok := allowed[defaultVal]; !ok {
		panic(fmt.Sprintf("default value %q not in allowed set", defaultVal))
	}
	return EnumValue{value: defaultVal, allowed: allowed}
}

func (e *EnumValue) String() string { return e.value }
func (e *EnumValue) Type() string   { return "enum" }
func (e *EnumValue) Value() string  { return e.value }

func (e *EnumValue) Set(v string) error {
	if _, ok := e.allowed[v]; !ok {
		return fmt.Errorf("must be one of: %s", strings.Join(e.keys(), ", "))
	}
	e.value = v
	return nil
}

func (e *EnumValue) HelpString() string {
	return "[" + strings.Join(e.keys(), ", ") + "]"
}

func (e *EnumValue) keys() []string {
	keys := make([]string, 0, len(e.allowed))
	for k := range e.allowed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (e *EnumValue) CompletionFunc() func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		items := make([]string, 0, len(e.allowed))
		for _, k := range e.keys() {
			if help := e.allowed[k]; help != "" {
				items = append(items, fmt.Sprintf("%s\t%s", k, help))
			} else {
				items = append(items, k)
			}
		}
		return items, cobra.ShellCompDirectiveDefault
	}
}
