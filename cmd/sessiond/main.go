// Command sessiond manages a trading terminal session: it opens and
// authenticates the terminal through a bridge, watches its liveness,
// reconnects on loss and journals session events.
package main

func main() {
	Execute()
}
