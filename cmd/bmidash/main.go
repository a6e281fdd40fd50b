package main

import "bmidash/internal/cli"

func main() {
	cli.Execute()
}
