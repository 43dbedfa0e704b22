package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"systemsmap-client/internal/models"
)

var (
	uploadSingle bool
	uploadExport bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Upload documents and fetch the systems map drawn from them",
	Long: `Uploads every file in one batch. When the backend returns a systems map
it is resolved and, with --export, saved through the configured export sink.

Examples:
  systemsmap upload report.pdf interviews.docx
  systemsmap upload --single notes.txt --export`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadSingle, "single", false, "use the one-document endpoint (exactly one file)")
	uploadCmd.Flags().BoolVar(&uploadExport, "export", false, "export the systems map after a successful upload")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadSingle && len(args) != 1 {
		return fmt.Errorf("--single takes exactly one file, got %d", len(args))
	}

	files, err := readUploadFiles(args)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	var result *models.UploadResult
	if uploadSingle {
		result, err = a.intake.UploadSingle(cmd.Context(), files[0])
	} else {
		result, err = a.intake.UploadBatch(cmd.Context(), files)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Message != "" {
		fmt.Fprintln(out, result.Message)
	}
	for _, name := range result.Files {
		fmt.Fprintf(out, "  + %s\n", name)
	}
	printDiagram(out, a.state.Diagram())

	if uploadExport && result.DiagramUpdated {
		outcome, err := a.exporter.ExportCurrent(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported via %s: %s\n", outcome.Sink, outcome.Location)
		if outcome.Note != "" {
			fmt.Fprintln(out, outcome.Note)
		}
	}
	return nil
}
