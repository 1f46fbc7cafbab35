package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/engine"
	"github.com/chazu/slotjit/gosrc"
	"github.com/chazu/slotjit/manifest"
)

func dumpCommand(m *manifest.Manifest, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	code := fs.Bool("code", false, "Print the emitted IL of every chunk")
	source := fs.Bool("source", false, "Print the Go source the gosrc backend would build")
	plans := fs.Bool("plans", false, "Print the local allocation of every chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("dump needs one program file")
	}

	f, p, chunks, err := load(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg := m.EngineConfig()

	fmt.Printf("%d instructions, %d slots, %d sources, %d destinations, depth %d\n",
		p.Len(), p.SlotCount(), p.SourceCount(), p.DestinationCount(), p.MaxDepth())
	if len(f.Sources) > 0 {
		fmt.Printf("sources: %v\n", f.Sources)
	}
	for _, c := range chunks {
		l := c.Layout()
		fmt.Printf("\n%s  open %d->%d  continued %d  hash %s\n",
			c, l.EntryOpen, l.ExitOpen, len(l.Leading), gosrc.FuncName(c))
		for i := c.Start(); i < c.End(); i++ {
			fmt.Printf("  %4d  %s%s\n", i, strings.Repeat("  ", l.Depth(i)), c.At(i))
		}
		if *plans {
			fmt.Printf("  plan: %s\n", alloc.New(c, cfg.Alloc))
		}
	}

	if *code {
		cfg.Kind = engine.KindEmit
		cfg.Options.PreserveSource = true
		b, err := engine.New(cfg)
		if err != nil {
			return err
		}
		r := &engine.Runner{Backend: b, Chunks: chunks}
		if err := r.Prepare(context.Background()); err != nil {
			return err
		}
		fmt.Printf("\n%s\n", b.Diagnostics())
	}

	if *source {
		src, err := gosrc.Render(chunks, cfg.Alloc)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s", src)
	}
	return nil
}
