package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hellhand/kube/internal/resource"
	"github.com/hellhand/kube/internal/timeline"
)

const (
	keySwapExtent resource.Key = "SWAP_EXTENT"
	keyProjection resource.Key = "PROJECTION"
	keyFrame      resource.Key = "FRAME"
	keyFPS        resource.Key = "FPS"
)

// demoTimeline declares the demo window's table and the callbacks that
// fill it each frame. Every slot lives in binding 0 so the whole table is
// copied into the frame's uniform buffer.
func demoTimeline(log *logrus.Entry) (*resource.Layout, []timeline.Entry, error) {
	layout, err := resource.NewLayout(
		resource.Decl{Key: keySwapExtent, Size: timeline.SwapExtentSize},
		resource.Decl{Key: keyProjection, Size: timeline.ProjectionSize},
		resource.Decl{Key: keyFrame, Size: timeline.FrameIndexSize},
		resource.Decl{Key: keyFPS, Size: timeline.FrameRateSize},
	)
	if err != nil {
		return nil, nil, err
	}
	fps := &timeline.FrameRate{
		OnUpdate: func(v float64) {
			log.WithField("fps", fmt.Sprintf("%.1f", v)).Info("frame rate")
		},
	}
	entries := []timeline.Entry{
		{Key: keySwapExtent, Callback: timeline.SwapExtent()},
		{Key: keyProjection, Callback: timeline.Projection()},
		{Key: keyFrame, Callback: timeline.FrameIndex()},
		{Key: keyFPS, Callback: fps},
	}
	return layout, entries, nil
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the demo resource table layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, _, err := demoTimeline(logrus.NewEntry(logrus.StandardLogger()))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tBINDING\tOFFSET\tSIZE")
			for _, s := range layout.Slots() {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", s.Key, s.Binding, s.Offset, s.Size)
			}
			for _, b := range layout.Bindings() {
				fmt.Fprintf(tw, "binding %d\t\t\t%d\n", b, layout.Size(b))
			}
			return tw.Flush()
		},
	}
}
