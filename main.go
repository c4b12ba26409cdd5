// The main package for the autocom-mirror executable.
package main

import (
	"github.com/mkosyakov/autocom-mirror/cmd"
)

func main() {
	cmd.Execute()
}
