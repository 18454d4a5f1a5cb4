// The main package for the webreader executable.
package main

import (
	"github.com/JakeFAU/webreader/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
