package main

import "github.com/asimalsarhani/portal-runner/pkg/cli"

func main() {
	cli.Execute()
}
