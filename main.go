// The main package for the scrapeforge executable.
package main

import (
	"github.com/JakeFAU/scrapeforge/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
