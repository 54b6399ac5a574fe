package main

import "github.com/korjavin/medcasebot/cli"

func main() {
	cli.Execute()
}
