// Command brewcalc computes brew sheets for recipes: it loads recipe records
// from a YAML file or the configured store and prints or exports every
// derived value.
package main

import (
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root, a := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return a.execute(root)
}
