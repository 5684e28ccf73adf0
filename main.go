package main

import "github.com/tanq16/polyfetch/cmd"

func main() {
	cmd.Execute()
}
