// slotjit CLI - generates, inspects and runs array-command programs
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/slotjit/manifest"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("slotjit")

func main() {
	configDir := flag.String("config", "", "Directory holding slotjit.toml (default: search upward from the working directory)")
	verbose := flag.Int("v", -1, "Log verbosity, overriding the configuration")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: slotjit [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  gen   Write a program file (random or the reference scenario)\n")
		fmt.Fprintf(os.Stderr, "  run   Execute a program file with the configured backend\n")
		fmt.Fprintf(os.Stderr, "  dump  Print a program's instructions, chunks and generated code\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  slotjit gen -seed 7 -o prog.sj\n")
		fmt.Fprintf(os.Stderr, "  slotjit run -passes 1000 -verify prog.sj\n")
		fmt.Fprintf(os.Stderr, "  slotjit run -kind gosrc -workers 8 prog.sj\n")
		fmt.Fprintf(os.Stderr, "  slotjit dump -code prog.sj\n")
	}
	flag.Parse()

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	verbosity := m.Log.Verbosity
	if *verbose >= 0 {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, m.LogFile())

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var cmdErr error
	switch args[0] {
	case "gen":
		cmdErr = genCommand(m, args[1:])
	case "run":
		cmdErr = runCommand(m, args[1:])
	case "dump":
		cmdErr = dumpCommand(m, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(1)
	}
}

// loadManifest reads slotjit.toml from dir, or searches upward from the
// working directory when dir is empty. Without a file the defaults apply.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}
