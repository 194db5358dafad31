package main

import (
	"github.com/sidkik/foldersync/cmd"
	"github.com/sidkik/foldersync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
