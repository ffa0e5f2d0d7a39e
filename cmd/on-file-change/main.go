// on-file-change runs a shell command whenever one of the watched files
// changes.
package main

import (
	"os"

	"github.com/hupe1980/onfile/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewOnFileChangeCommand()))
}
