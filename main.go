// The main package for the upwork-radar executable.
package main

import (
	"github.com/radarworks/upwork-radar/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
