// Command cryscope streams baby-cry audio to the DashScope realtime service
// and prints the analysis text as it arrives.
//
// Usage:
//
//	cryscope [--config file] [--env-file file] <command>
//
// Commands:
//
//	stream   - Stream a WAV file or a test tone and print the result
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/cryscope/cmd/cryscope/commands"
	"github.com/harunnryd/cryscope/pkg/redact"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", redact.Text(err.Error()))
		os.Exit(1)
	}
}
