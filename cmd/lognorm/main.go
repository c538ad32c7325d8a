package main

import "lognorm/internal/cmd"

func main() {
	cmd.Execute()
}
