// genja depfile <root-dir> <depfile>
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/genja-build/genja/internal/depfile"
	"github.com/genja-build/genja/internal/msg"
)

var depfileCmd = &cobra.Command{
	Use:   "depfile <root-dir> <depfile>",
	Short: "Rewrite a compiler-emitted dependency file in place",
	Long: `Rewrite a Makefile-style dependency file so every prerequisite is an
absolute path; relative prerequisites are resolved against <root-dir>.
Compile rules chain this after the compiler so the executor's incremental
rebuild triggering stays correct.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := depfile.Rewrite(args[0], args[1]); err != nil {
			msg.Fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(depfileCmd)
}
