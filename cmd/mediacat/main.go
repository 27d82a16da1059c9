// Command mediacat reads media sources through mediaflow streams.
//
// Usage:
//
//	mediacat [flags] <command> [args]
//
// Commands:
//
//	kinds - List registered source kinds
//	cat   - Copy a source's bounded stream to stdout or a file
//	live  - Follow a source's live stream until interrupted
//
// A source argument is either a name from the config file's sources list
// or a kind:location pair such as file:/var/media/clip.ts,
// s3:bucket/key or ws://host/feed.
package main

import (
	"fmt"
	"os"

	"github.com/vnykmshr/mediaflow/cmd/mediacat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
