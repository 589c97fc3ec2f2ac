package main

import "github.com/lockhaven/paywalld/cli"

func main() {
	cli.Execute()
}
