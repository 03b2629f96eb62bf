// Sobundle gathers the shared-library closure of a binary into a tree.
package main

import "github.com/albertocavalcante/sobundle/cmd/sobundle/internal/cli"

func main() {
	cli.Execute()
}
