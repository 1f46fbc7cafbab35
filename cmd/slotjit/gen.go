package main

import (
	"flag"
	"fmt"

	"github.com/chazu/slotjit/manifest"
	"github.com/chazu/slotjit/program"
	"github.com/chazu/slotjit/program/synth"
)

func genCommand(m *manifest.Manifest, args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	out := fs.String("o", "program.sj", "Output file")
	seed := fs.Uint64("seed", 1, "Random seed")
	length := fs.Int("length", 200, "Approximate instruction count")
	slots := fs.Int("slots", 16, "Number of slots")
	depth := fs.Int("depth", 3, "Deepest If nesting")
	scenario := fs.Bool("scenario", false, "Write the reference scenario instead of a random program")
	chunkSize := fs.Int("chunk", m.Engine.ChunkSize, "Largest chunk, in instructions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var p *program.Program
	var sources []float64
	if *scenario {
		p = program.MustNew(synth.Scenario())
		sources = []float64{5}
	} else {
		opts := synth.DefaultOptions(*seed)
		opts.Length = *length
		opts.Slots = *slots
		opts.MaxDepth = *depth
		p = synth.Generate(opts)
		sources = synth.Sources(*seed, p.SourceCount())
	}

	chunks, err := p.Partition(*chunkSize)
	if err != nil {
		return err
	}
	f := &program.File{Commands: p.Commands(), Sources: sources}
	for _, c := range chunks {
		f.Chunks = append(f.Chunks, c.Range())
	}
	if err := program.WriteFile(*out, f); err != nil {
		return err
	}
	fmt.Printf("Wrote %s: %d instructions, %d chunks, %d slots\n", *out, p.Len(), len(chunks), p.SlotCount())
	return nil
}
