package main

import "mapping-registry/cmd"

func main() {
	cmd.Execute()
}
