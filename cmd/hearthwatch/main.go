package main

import "github.com/hearthwatch/hearthwatch/cmd/hearthwatch/cmd"

func main() {
	cmd.Execute()
}
