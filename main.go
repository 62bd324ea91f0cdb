package main

import "github.com/sarchlab/ecmsim/cmd"

func main() {
	cmd.Execute()
}
