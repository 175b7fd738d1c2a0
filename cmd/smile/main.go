package main

import "github.com/smile-lang/smile/cmd/smile/cmd"

func main() {
	cmd.Execute()
}
