// Command buildium discovers build targets in project roots and runs them
// from the terminal.
package main

import "github.com/dshills/buildium/cmd/buildium/internal"

func main() {
	internal.Execute()
}
