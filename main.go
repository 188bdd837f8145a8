package main

import "mspro-labs/cfe-tariffs/cmd"

func main() {
	cmd.Execute()
}
