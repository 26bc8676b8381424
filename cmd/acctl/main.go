// acctl is the administrative CLI for the access control layer. It
// talks straight to the configured storage, so it can manage
// permissions and rate limits while the bot is offline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
