package main

import "github.com/kris-hansen/metagent/cmd"

func main() {
	cmd.Execute()
}
