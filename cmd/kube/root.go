package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.2.0"

type runOptions struct {
	configFile string
	headless   bool
	frames     int
}

func newRootCmd() *cobra.Command {
	var opts runOptions
	root := &cobra.Command{
		Use:   "kube",
		Short: "Vulkan window demo",
		Long: `Kube opens a window, builds a swap chain for it and clears it every
frame while a timeline of callbacks updates the window's resource table.

With --headless the same loop runs against an in-memory driver, which
needs no GPU or display.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is $HOME/.kube2d/kube.yaml or ./kube.yaml)")
	root.Flags().BoolVar(&opts.headless, "headless", false, "run against the in-memory driver")
	root.Flags().IntVar(&opts.frames, "frames", 0, "stop after this many frames (0 runs until the window closes)")

	root.AddCommand(newLayoutCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kube v%s\n", version)
		},
	}
}
