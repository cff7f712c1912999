package main

import "github.com/jask/smsledger/internal/cli"

func main() {
	cli.Execute()
}
