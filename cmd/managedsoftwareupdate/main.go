package main

import "gomunki/internal/cli"

func main() {
	cli.Execute()
}
