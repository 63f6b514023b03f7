package main

import "tagindex/internal/cli"

func main() {
	cli.Execute()
}
