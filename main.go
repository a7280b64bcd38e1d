package main

import "github.com/notargets/meshcomm/cmd"

func main() {
	cmd.Execute()
}
