// lipsync drives the mouth and idle motion of a Live2D character from speech
// timelines or live audio.
package main

import (
	"os"

	"github.com/normanking/lipsync/cmd/lipsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
