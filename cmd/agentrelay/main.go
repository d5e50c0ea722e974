// agentrelay streams agent runs to browser clients, executing the agent's
// SQL on the caller's behalf and splicing the agent's follow-up answer into
// the same stream.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
