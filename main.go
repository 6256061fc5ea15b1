package main

import "github.com/KaramelBytes/autodq-cli/cmd"

func main() {
	cmd.Execute()
}
