// p1_replay feeds a captured P1 stream through the telegram decoder and
// prints the decoded values.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
