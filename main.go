package main

import "github.com/umpdisplay/ump-matrix-display/cmd"

func main() {
	cmd.Execute()
}
