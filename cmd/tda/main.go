package main

import "github.com/quantbridge/tda/cmd/tda/commands"

func main() {
	commands.Execute()
}
