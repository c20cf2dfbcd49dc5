// Command gen-skeleton writes a synthetic skeleton animation for demos and
// manual testing, and optionally the matching receiver base model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zsiec/bonecast/internal/anim/synth"
	"github.com/zsiec/bonecast/internal/config"
	"github.com/zsiec/bonecast/internal/scenefile"
	"github.com/zsiec/bonecast/internal/session"
)

func main() {
	outFlag := flag.String("o", "take.json", "Output scene file (.json or .yaml)")
	nameFlag := flag.String("name", "Hips", "Skeleton root name")
	jointsFlag := flag.Int("joints", 24, "Joint count including the root")
	keysFlag := flag.Int("keys", 120, "Keys per animated curve")
	stepFlag := flag.Duration("step", 33*time.Millisecond, "Time between keys")
	propsFlag := flag.Bool("props", true, "Add a camera node before the skeleton")
	baseFlag := flag.String("base", "", "Also write the receiver base model to this file")
	globalFlag := flag.Bool("global", true, "Base model uses world-space marker translations")
	flag.Parse()

	if *jointsFlag < 1 || *keysFlag < 1 {
		fmt.Fprintln(os.Stderr, "joints and keys must be at least 1")
		os.Exit(2)
	}

	scene := synth.Skeleton(synth.Options{
		Name:   *nameFlag,
		Joints: *jointsFlag,
		Keys:   *keysFlag,
		Step:   *stepFlag,
		Props:  *propsFlag,
	})

	var store scenefile.Store
	if err := store.Save(scene, *outFlag, scenefile.FormatFromPath(*outFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s: %d joints, %d keys per curve, %v total\n",
		*outFlag, *jointsFlag, *keysFlag, time.Duration(*keysFlag-1) * *stepFlag)

	if *baseFlag == "" {
		return
	}
	cfg := config.Default()
	cfg.GlobalTransform = *globalFlag
	cfg.SourceFile = *outFlag
	cfg.BaseModelFile = *baseFlag
	s := session.New(cfg, session.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	if err := s.CreateBaseModel(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: base model: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *baseFlag)
}
