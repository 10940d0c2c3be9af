package main

import (
	"os"

	"github.com/solatis/formflow/cmd/formflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
