package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/casllmproject/bending-effect/internal/session"
	"github.com/casllmproject/bending-effect/internal/uds"
)

const version = "1.0.2"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "advance":
		runAdvance(os.Args[2:])
	case "version":
		fmt.Printf("bending %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runRun(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: bending run <generate|gate> <session-dir> [--endpoint URL]")
		os.Exit(1)
	}

	mode := session.Mode(args[0])
	if mode != session.ModeGenerate && mode != session.ModeGate {
		fmt.Fprintf(os.Stderr, "unknown mode: %s (expected generate or gate)\n", args[0])
		os.Exit(1)
	}
	sessionDir := args[1]

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	endpoint := fs.String("endpoint", "", "generation endpoint URL (overrides config.yaml)")
	if err := fs.Parse(args[2:]); err != nil {
		os.Exit(1)
	}

	cfg, err := session.LoadConfig(sessionDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *endpoint != "" {
		cfg.Endpoint.URL = *endpoint
	}

	runner, err := session.New(sessionDir, mode, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: bending status <session-dir>")
		os.Exit(1)
	}
	resp := sendCommand(args[0], "status")

	var report session.StatusReport
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse status: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}

func runAdvance(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: bending advance <session-dir>")
		os.Exit(1)
	}
	sendCommand(args[0], "advance")
	fmt.Println("advanced")
}

func sendCommand(sessionDir, command string) *uds.Response {
	client := uds.NewClient(filepath.Join(sessionDir, uds.DefaultSocketName))
	resp, err := client.SendCommand(command, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", resp.Error.Code, resp.Error.Message)
		os.Exit(1)
	}
	return resp
}

func printUsage() {
	fmt.Println(`bending - survey session agent

Usage:
  bending run generate <session-dir> [--endpoint URL]
      Run the article-generation page behavior: call the generation
      endpoint with unbounded retry, drive the countdown display, commit
      results to the embedded-data sink, and fire the advance trigger on
      success.

  bending run gate <session-dir>
      Run the navigation-gate page behavior: hold the next-page control
      hidden for the suppression window, undoing any external reveal,
      then release it.

  bending status <session-dir>
      Query a running session over its socket.

  bending advance <session-dir>
      Manually fire the one-shot advance trigger (idempotent).

  bending version
  bending help`)
}
