// Command hera manages preset-driven entities and transactions.
package main

import "github.com/mesh-intelligence/hera/internal/cli"

func main() {
	cli.Execute()
}
