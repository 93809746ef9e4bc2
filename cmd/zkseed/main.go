package main

import "github.com/fahmaliyi/zkseed/cli"

func main() {
	cli.Execute(&cli.App{})
}
