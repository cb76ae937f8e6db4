//go:build windows

package cc

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/heaths/go-vssetup"
)

// findPlatformCompiler asks the Visual Studio setup API for an installation
// and digs cl.exe out of its default MSVC toolset.
func findPlatformCompiler() string {
	instances, err := vssetup.Instances(false)
	if err != nil {
		return ""
	}
	for _, instance := range instances {
		defer instance.Close()

		root, err := instance.InstallationPath()
		if err != nil {
			continue
		}

		versionFile := filepath.Join(root, "VC", "Auxiliary", "Build", "Microsoft.VCToolsVersion.default.txt")
		data, err := os.ReadFile(versionFile)
		if err != nil {
			continue
		}
		toolsVersion := strings.TrimSpace(string(data))

		cl := filepath.Join(root, "VC", "Tools", "MSVC", toolsVersion, "bin", "Hostx64", "x64", "cl.exe")
		if _, err := os.Stat(cl); err == nil {
			return cl
		}
	}
	return ""
}
