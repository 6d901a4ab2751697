package main

import "github.com/shieldx/companion/cmd"

func main() {
	cmd.Execute()
}
