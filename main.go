package main

import "github.com/operio-app/operio/cmd"

func main() {
	cmd.Execute()
}
