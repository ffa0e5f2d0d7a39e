// wait-for-file blocks until a file exists.
package main

import (
	"os"

	"github.com/hupe1980/onfile/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewWaitForFileCommand()))
}
