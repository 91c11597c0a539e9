package main

import "github.com/cosmo-sim/cosmo-sim/cmd"

func main() {
	cmd.Execute()
}
