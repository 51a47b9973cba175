// Command fake-opencode stands in for the liveness check CLI during local
// development. Point probe.command at it:
//
//	probe:
//	  command: ["go", "run", "./deployment/localdev/fake-opencode", "run", "--format", "json", "-m", "{model}", "{prompt}"]
//
// The outcome is chosen from substrings of the model name.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: fake-opencode run --format json -m <model> <prompt>")
		os.Exit(2)
	}
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	format := fs.String("format", "json", "output format")
	model := fs.String("m", "", "model identifier")
	_ = fs.Parse(os.Args[2:])
	if *format != "json" || *model == "" {
		fmt.Fprintln(os.Stderr, "fake-opencode: --format json and -m are required")
		os.Exit(2)
	}

	low := strings.ToLower(*model)
	emit(map[string]any{"type": "step_start"})
	switch {
	case strings.Contains(low, "slow"):
		time.Sleep(90 * time.Second)
		emitText()
	case strings.Contains(low, "dead"):
		emitError(map[string]any{"name": "ProviderModelNotFoundError", "data": map[string]any{"message": "Model not found: " + *model}})
	case strings.Contains(low, "throttled"):
		emitError(map[string]any{"message": "429 rate limit exceeded"})
	case strings.Contains(low, "locked"):
		fmt.Fprintln(os.Stderr, "Error: 401 Unauthorized")
		os.Exit(1)
	case strings.Contains(low, "flaky"):
		fmt.Fprintln(os.Stderr, "upstream returned 503")
		os.Exit(1)
	default:
		emitText()
	}
}

func emitText() {
	emit(map[string]any{"type": "text", "part": map[string]any{"text": "PONG"}})
}

func emitError(payload map[string]any) {
	emit(map[string]any{"type": "error", "error": payload})
}

func emit(event map[string]any) {
	line, _ := json.Marshal(event)
	fmt.Println(string(line))
}
