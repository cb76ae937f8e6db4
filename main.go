package main

import "github.com/genja-build/genja/cmd"

func main() {
	cmd.Execute()
}
