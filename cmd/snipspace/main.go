// Command snipspace runs the snippet namespace service and its maintenance
// tools.
//
//	snipspace serve -c config.yaml      # HTTP API
//	snipspace fsck --user <id>          # check tree/snippet consistency
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
