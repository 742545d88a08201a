// Command tango-log views and analyzes protocol log files.
//
// Log files are written by tango-devsim and tango-evmon when run with the
// -protocol-log flag.
//
// Usage:
//
//	tango-log <command> [flags] <file.tlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events of one device
//	tango-log view -device sys/tg_test/1 client.tlog
//
//	# Follow one asynchronous request
//	tango-log view -request 42 client.tlog
//
//	# Export subscription changes to CSV
//	tango-log export -category subscription -format csv -o subs.csv client.tlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tango-controls/tango-go/cmd/tango-log/commands"
	"github.com/tango-controls/tango-go/pkg/log"
)

const usage = `tango-log - Tango Protocol Log Analyzer

Usage:
  tango-log <command> [flags] <file.tlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines or CSV
  stats    Show statistics about the log file

Use "tango-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set with the shared filter flags bound to ff.
func newFlagSet(name, summary string, ff *commands.FilterFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "tango-log %s - %s\n\nUsage:\n  tango-log %s [flags] <file.tlog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
	fs.StringVar(&ff.Session, "session", "", "Filter by session ID")
	fs.StringVar(&ff.Device, "device", "", "Filter by device name")
	fs.UintVar(&ff.RequestID, "request", 0, "Filter by request ID")
	fs.StringVar(&ff.Layer, "layer", "", "Filter by layer (transport, request, event, server)")
	fs.StringVar(&ff.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&ff.Category, "category", "", "Filter by category (message, subscription, state, error)")
	fs.StringVar(&ff.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&ff.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return fs
}

// parse parses args and returns the log path, exiting on bad input.
func parse(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	var ff commands.FilterFlags
	fs := newFlagSet("view", "View log file in human-readable format", &ff)
	path := parse(fs, args)
	filter := buildFilter(ff)

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func runExport(args []string) {
	var ff commands.FilterFlags
	fs := newFlagSet("export", "Export log file to JSON lines or CSV", &ff)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parse(fs, args)
	filter := buildFilter(ff)

	if err := commands.RunExport(path, filter, *format, *output); err != nil {
		fatal(err)
	}
}

func runStats(args []string) {
	var ff commands.FilterFlags
	fs := newFlagSet("stats", "Show statistics about the log file", &ff)
	path := parse(fs, args)
	filter := buildFilter(ff)

	if err := commands.RunStats(path, filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func buildFilter(ff commands.FilterFlags) log.Filter {
	filter, err := ff.Build()
	if err != nil {
		fatal(err)
	}
	return filter
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
