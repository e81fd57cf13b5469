package main

import (
	"os"

	"github.com/jgallag88/libjdb/cmd/jdb/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
