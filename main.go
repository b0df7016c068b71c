package main

import "github.com/djcass44/aptfetch/cmd"

var version = "develop"

func main() {
	cmd.Execute(version)
}
