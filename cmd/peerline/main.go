package main

import "github.com/peerline/peerline/internal/cli"

func main() {
	cli.Execute()
}
