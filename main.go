// The main package for the registrycrawler executable.
package main

import (
	"github.com/JakeFAU/registry-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
