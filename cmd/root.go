// genja [path], genja configure [path]
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.starlark.net/starlark"

	"github.com/genja-build/genja/internal/conf"
	"github.com/genja-build/genja/internal/driver"
	"github.com/genja-build/genja/internal/msg"
	"github.com/genja-build/genja/internal/ninja"
)

var (
	flagBuildDir string
	flagPreloads []string
	flagSnapshot = NewEnumValue("toml", map[string]string{
		"toml": "TOML configuration snapshot (default)",
		"json": "JSON configuration snapshot",
	})
)

func doConfigure(cmd *cobra.Command, args []string) {
	srcRoot := "."
	if len(args) > 0 {
		srcRoot = args[0]
	}

	buildDir := flagBuildDir
	if !filepath.IsAbs(buildDir) {
		buildDir = filepath.Join(srcRoot, buildDir)
	}

	d, err := driver.New(srcRoot, buildDir)
	if err != nil {
		msg.Fatal("%v", err)
	}

	if err := d.Run(flagPreloads); err != nil {
		fatalConfigure(err)
	}

	snapshotName := conf.SnapshotFilename(flagSnapshot.Value())
	s := &ninja.Serializer{
		SelfCommand:  selfCommand(d),
		SnapshotFile: snapshotName,
	}
	if err := s.WriteFiles(d.BuildRoot(), d.Graph()); err != nil {
		msg.Fatal("%v", err)
	}
	if err := conf.WriteSnapshot(filepath.Join(d.BuildRoot(), snapshotName), flagSnapshot.Value(), d.SourceRoot(), d.Config()); err != nil {
		msg.Fatal("%v", err)
	}

	msg.Info("wrote %s", filepath.Join(d.BuildRoot(), ninja.RootFile))
}

// fatalConfigure reports a failed configure pass. Script failures print the
// full Starlark backtrace, indented under the error line.
func fatalConfigure(err error) {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		var scriptErr *driver.ScriptError
		if errors.As(err, &scriptErr) {
			msg.Error("script %s failed:", scriptErr.Path)
		} else {
			msg.Error("script evaluation failed:")
		}
		iw := &msg.IndentWriter{Indent: "  ", W: os.Stderr}
		fmt.Fprintln(iw, evalErr.Backtrace())
		os.Exit(1)
	}
	msg.Fatal("%v", err)
}

// selfCommand is the argv the emitted reconfigure rule runs to regenerate
// the build files, with every path pinned absolute.
func selfCommand(d *driver.Driver) []string {
	exe, err := os.Executable()
	if err != nil {
		exe = "genja"
	}
	argv := []string{exe, "configure", d.SourceRoot(), "--build-dir", d.BuildRoot(), "--snapshot-format", flagSnapshot.Value()}
	for _, preload := range flagPreloads {
		if abs, err := filepath.Abs(preload); err == nil {
			preload = abs
		}
		argv = append(argv, "--preload", preload)
	}
	return argv
}

var rootCmd = &cobra.Command{
	Use:   "genja [source dir]",
	Short: "Compile a tree of build.genja scripts into ninja build files",
	Long: `genja walks a source tree of build.genja configuration scripts and
compiles them into ninja-syntax build files for an external ninja-compatible
executor. If no source dir is given, uses ".".`,
	Args: cobra.MaximumNArgs(1),
	Run:  doConfigure,
}

var configureCmd = &cobra.Command{
	Use:   "configure [source dir]",
	Short: "Run the configure pass",
	Long:  `Run the configure pass. If no source dir is given, uses ".".`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doConfigure,
}

func init() {
	addConfigureFlags(rootCmd)

	rootCmd.AddCommand(configureCmd)
	addConfigureFlags(configureCmd)
}

func addConfigureFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagBuildDir, "build-dir", "B", "build", "Directory to emit build files into")
	cmd.Flags().StringArrayVar(&flagPreloads, "preload", nil, "Script to evaluate before the root build.genja (repeatable)")
	cmd.Flags().Var(&flagSnapshot, "snapshot-format", "Configuration snapshot format, one of "+flagSnapshot.HelpString())
	cmd.RegisterFlagCompletionFunc("snapshot-format", flagSnapshot.CompletionFunc())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
