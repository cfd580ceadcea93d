package devices

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/audiocore/sources"
	"github.com/tphakala/dbstation/internal/conf"
)

const listTimeout = 10 * time.Second

// Command creates the command that lists audio input devices.
func Command(_ *conf.Settings) *cobra.Command {
	var (
		all     bool
		backend string
	)

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Long:  "List the input devices of a capture backend. Only devices usable as microphones are shown unless --all is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), listTimeout)
			defer cancel()
			return List(ctx, cmd.OutOrStdout(), sources.NewDefaultCatalog(), backend, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Show every device, including outputs and secondary host APIs")
	cmd.Flags().StringVar(&backend, "backend", sources.DefaultType, "Capture backend (malgo or portaudio)")

	return cmd
}

// List writes a device table for backend to w.
func List(ctx context.Context, w io.Writer, catalog *sources.Catalog, backend string, all bool) error {
	var (
		devices []audiocore.DeviceInfo
		err     error
	)
	if all {
		devices, err = catalog.ListInputSources(ctx, backend)
	} else {
		devices, err = catalog.UsableInputs(ctx, backend)
	}
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No input devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tINPUTS\tHOST API\tDEFAULT")
	for _, d := range devices {
		hostAPI := d.HostAPIName
		if hostAPI == "" {
			hostAPI = fmt.Sprint(d.HostAPI)
		}
		def := ""
		if d.DefaultInput {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Name, d.MaxInputChannels, hostAPI, def)
	}
	return tw.Flush()
}
