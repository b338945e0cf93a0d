package main

import "github.com/Norgate-AV/ccb/cmd"

func main() {
	cmd.Execute()
}
