// genja init [dir]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/genja-build/genja/internal/msg"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

// initIn scaffolds a minimal genja project in dir.
func initIn(dir string) {
	mkdir(dir, "src")

	writefile(`extend_config({"project": {"name": "hello"}})

subdir("src")

alias("hello", deps = [find_target("app")])
`, dir, "build.genja")

	writefile(`obj = compile(output = "main.o", source = "main.c")
bin = link(output = "hello", objects = [obj])

alias("app", deps = [bin])
`, dir, "src", "build.genja")

	writefile(`#include <stdio.h>

int main(void) {
    puts("Hello, World!");
    return 0;
}
`, dir, "src", "main.c")
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a new genja project",
	Long:  `Scaffold a new genja project. If no directory is given, uses ".".`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
			mkdir(dir)
		}
		initIn(dir)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
