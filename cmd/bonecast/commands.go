package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/zsiec/bonecast/internal/lossy"
	"github.com/zsiec/bonecast/internal/markers"
	"github.com/zsiec/bonecast/internal/scenefile"
	"github.com/zsiec/bonecast/internal/session"
)

func newSession(cmd *cobra.Command, gf *globalFlags) (*session.Session, error) {
	cfg, err := resolveConfig(cmd, gf, environ())
	if err != nil {
		return nil, err
	}
	log := setupLogger(cfg.LogLevel)
	return session.New(cfg, session.WithLogger(log)), nil
}

func newTransmitCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "transmit",
		Short: "Send the first skeleton of SOURCE_FILE to HOST:PORT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, gf)
			if err != nil {
				return err
			}
			defer s.Close()
			return runUntilSignal(cmd.Context(), func(ctx context.Context) error {
				task, err := s.BeginTransmit(ctx)
				if err != nil {
					return err
				}
				if err := task.Wait(); err != nil {
					return err
				}
				st := task.TransmitStats()
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d packets (%d keys, %d bytes)\n", st.Packets, st.Keys, st.Bytes)
				return nil
			})
		},
	}
}

func newListenCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Receive a stream onto BASE_MODEL_FILE and save it to EXPORT_FILE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, gf)
			if err != nil {
				return err
			}
			defer s.Close()
			return runUntilSignal(cmd.Context(), func(ctx context.Context) error {
				task, err := s.BeginListen(ctx)
				if err != nil {
					return err
				}
				if err := task.Wait(); err != nil {
					return err
				}
				st := task.ReceiveStats()
				fmt.Fprintf(cmd.OutOrStdout(), "received %d packets (%d keys, %d malformed, %d duplicates) in %dms\n",
					st.Datagrams, st.KeysApplied, st.DecodeErrors, st.Duplicates, st.ElapsedMs)
				return nil
			})
		},
	}
}

func newBaseModelCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "base-model",
		Short: "Write the receiver base model for SOURCE_FILE to BASE_MODEL_FILE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, gf)
			if err != nil {
				return err
			}
			if err := s.CreateBaseModel(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", s.Config().BaseModelFile)
			return nil
		},
	}
}

func newDropKeysCmd() *cobra.Command {
	var (
		threshold int
		seed      uint64
	)
	cmd := &cobra.Command{
		Use:   "drop-keys <in> <out>",
		Short: "Simulate packet loss by deleting keyframes from the first skeleton",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var store scenefile.Store
			scene, err := store.Load(args[0])
			if err != nil {
				return err
			}
			skel, err := markers.FindSkeleton(scene)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			opts := lossy.Options{Threshold: threshold}
			if cmd.Flags().Changed("seed") {
				opts.Rand = rand.New(rand.NewPCG(seed, seed))
			}
			st := lossy.DropKeys(scene, skel, opts)
			if err := store.Save(scene, args[1], scenefile.FormatFromPath(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d of %d keys (%.0f%% retained)\n",
				st.Removed, st.Examined, 100*st.Retained())
			return nil
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", lossy.DefaultThreshold, "drop a key when a draw in [0,10) is below this")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for a repeatable run")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bonecast version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bonecast %s\n", version)
		},
	}
}
