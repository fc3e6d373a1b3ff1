package main

import "github.com/example/happyfinder/cmd"

func main() {
	cmd.Execute()
}
