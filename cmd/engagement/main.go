package main

import "github.com/kmassidik/engagement/internal/cli"

func main() {
	cli.Execute()
}
