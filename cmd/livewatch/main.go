// Command livewatch mounts a live query against a realtime backend and
// prints every state change of its cache entry.
package main

import "github.com/dmitrymomot/livesync/cmd/livewatch/cmd"

func main() {
	cmd.Execute()
}
