package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/camerapipe/internal/device"
)

// CreateInspectCmd creates the inspect command.
func CreateInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [device]",
		Short: "List the formats a capture device offers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "/dev/video0"
			if len(args) == 1 {
				path = args[0]
			}
			info, err := device.Inspect(path)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return WriteInspect(os.Stdout, info)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// WriteInspect prints info as an indented list.
func WriteInspect(w io.Writer, info *device.Info) error {
	if _, err := fmt.Fprintf(w, "%s: %s (%s, %s)\n", info.Path, info.Card, info.Driver, info.BusInfo); err != nil {
		return err
	}
	for _, f := range info.Formats {
		if _, err := fmt.Fprintf(w, "  %s\n", f.FourCC); err != nil {
			return err
		}
		for _, s := range f.Sizes {
			rates := make([]string, 0, len(s.FrameRates))
			for _, r := range s.FrameRates {
				rates = append(rates, fmt.Sprint(r))
			}
			line := fmt.Sprintf("    %dx%d", s.Width, s.Height)
			if len(rates) > 0 {
				line += " @ " + strings.Join(rates, ",") + " fps"
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}
