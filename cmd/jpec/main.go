package main

import "jpe-compiler/internal/cli"

func main() {
	cli.Execute()
}
