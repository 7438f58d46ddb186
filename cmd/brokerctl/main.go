package main

import "github.com/lukeborglin-coder/mr-broker/internal/cli"

func main() {
	cli.Execute()
}
