package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yungbote/aggsync/internal/app"
	"github.com/yungbote/aggsync/internal/data/aggregates"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	exitDrift = 3
)

type nameList []string

func (l *nameList) String() string { return strings.Join(*l, ",") }
func (l *nameList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func usage(w io.Writer) int {
	fmt.Fprintf(w, "usage: aggregates <refresh|verify|list> [-name poll.total_score ...]\n")
	return exitUsage
}

func knownCommand(cmd string) bool {
	switch cmd {
	case "list", "refresh", "verify":
		return true
	}
	return false
}

func main() {
	if len(os.Args) < 2 || !knownCommand(os.Args[1]) {
		os.Exit(usage(os.Stderr))
	}
	application, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		os.Exit(exitError)
	}
	code := run(context.Background(), application.Engine, os.Args[1:], os.Stdout, os.Stderr)
	application.Close()
	os.Exit(code)
}

// run executes one subcommand against engine and returns the process exit code.
func run(ctx context.Context, engine *aggregates.Engine, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || !knownCommand(args[0]) {
		return usage(stderr)
	}
	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var names nameList
	fs.Var(&names, "name", "aggregate definition name (repeatable; default all)")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	switch cmd {
	case "list":
		_ = enc.Encode(engine.Registry().All())
	case "refresh":
		reports, err := engine.RefreshAll(ctx, names...)
		_ = enc.Encode(reports)
		if err != nil {
			fmt.Fprintf(stderr, "refresh: %v\n", err)
			return exitError
		}
	case "verify":
		if len(names) == 0 {
			names = engine.Registry().Names()
		}
		drift := false
		for _, n := range names {
			report, err := engine.Verify(ctx, n)
			if err != nil {
				fmt.Fprintf(stderr, "verify %s: %v\n", n, err)
				return exitError
			}
			_ = enc.Encode(report)
			drift = drift || !report.OK()
		}
		if drift {
			return exitDrift
		}
	}
	return exitOK
}
