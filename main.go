package main

import "pagebuilder/cmd"

func main() {
	cmd.Execute()
}
