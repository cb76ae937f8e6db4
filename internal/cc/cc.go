// Package cc locates a host C/C++ toolchain. The probe result only seeds the
// default configuration; scripts may override the compiler per target.
package cc

import (
	"os"
	"os/exec"
)

var (
	commonCCompilers   = []string{"clang", "gcc", "icx", "icc", "tcc", "cl"}
	commonCxxCompilers = []string{"clang++", "g++", "clang", "gcc", "icpx", "icx", "icpc", "icc", "cl"}
)

// Find returns the path of a usable C (or C++) compiler, or "" when none is
// found. $CC/$CXX win, then common names on PATH, then the platform probe
// (Visual Studio on Windows).
func Find(needCxx bool) string {
	cc := os.Getenv("CC")
	cxx := os.Getenv("CXX")

	if needCxx && cxx != "" {
		return cxx
	}
	if !needCxx && cc != "" {
		return cc
	}
	if cxx != "" {
		return cxx
	}
	if cc != "" {
		return cc
	}

	candidates := commonCCompilers
	if needCxx {
		candidates = commonCxxCompilers
	}
	for _, compiler := range candidates {
		if path, err := exec.LookPath(compiler); err == nil {
			return path
		}
	}

	return findPlatformCompiler()
}
