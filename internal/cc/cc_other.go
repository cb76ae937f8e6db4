//go:build !windows

package cc

// findPlatformCompiler has no extra probing to do outside Windows; PATH
// lookup already covered everything.
func findPlatformCompiler() string { return "" }
