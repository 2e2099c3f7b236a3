// chunktool inspects and converts chunk streams between the binary and
// JSON forms.
package main

import (
	"os"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/Faultbox/datachunk/internal/logger"
)

func main() {
	err := newRootCmd(osfs.New("/")).Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
