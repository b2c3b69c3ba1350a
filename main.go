package main

import "duelbench/cmd"

func main() {
	cmd.Execute()
}
