package main

import "github.com/naka-gawa/github-gitlog/cmd"

func main() {
	cmd.Execute()
}
