// The main package for the scholarsync executable.
package main

import (
	"github.com/scholarsync/crawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
