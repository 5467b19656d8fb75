package main

import "github.com/schemakit/schemactl/cmd"

func main() {
	cmd.Execute()
}
