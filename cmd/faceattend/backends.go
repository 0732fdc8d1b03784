package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MrCodeEU/faceattend/pkg/detect"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List face detector backends and their availability",
	Args:  cobra.NoArgs,
	RunE:  runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tNAME\tSTATUS\tMODEL")
	fmt.Fprintln(w, "-------\t----\t------\t-----")

	for _, info := range detect.Backends(cfg.DetectorConfig()) {
		status := "available"
		if !info.Available {
			status = info.Reason
		}
		model := info.ModelPath
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Backend, info.Name, status, model)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nConfigured backend: %s (fallback to pigo: %t)\n", cfg.Detector.Backend, cfg.Detector.FallbackToPigo)
	return nil
}
