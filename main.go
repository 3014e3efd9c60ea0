package main

import "github.com/hfdownloader/hfd/cmd"

func main() {
	cmd.Execute()
}
