package main

import "github.com/qrave1/voicegrid/cmd"

func main() {
	cmd.Execute()
}
