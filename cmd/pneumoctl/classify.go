package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kirillkom/pneumonia-classifier/internal/bootstrap"
	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
	"github.com/kirillkom/pneumonia-classifier/internal/core/usecase"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/imaging"
)

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

type classifyRow struct {
	File     string
	Workflow *domain.Workflow
	Err      error
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify FILE...",
		Short: "Classify chest X-ray images",
		Long: `Classify one or more chest X-ray images with the configured predictor backend.

In staged mode a Pneumonia result stops after stage 1 unless --confirm is set,
in which case stage 2 runs on the same preprocessed image. With --record the
finished results are saved as patient records of --owner, named after the file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}
	cmd.Flags().String("mode", string(domain.ModeMulticlass), "classification mode (multiclass, staged)")
	cmd.Flags().Bool("confirm", false, "run stage 2 when stage 1 reports Pneumonia")
	cmd.Flags().Bool("record", false, "save finished results as patient records")
	cmd.Flags().String("owner", "", "username owning recorded patients")
	return cmd
}

func runClassify(cmd *cobra.Command, files []string) error {
	ctx := cmd.Context()
	modeFlag, _ := cmd.Flags().GetString("mode")
	confirm, _ := cmd.Flags().GetBool("confirm")
	record, _ := cmd.Flags().GetBool("record")
	owner, _ := cmd.Flags().GetString("owner")

	mode := domain.Mode(strings.ToLower(modeFlag))
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", modeFlag)
	}
	if record && owner == "" {
		return fmt.Errorf("--record requires --owner")
	}

	manifest, err := bootstrap.LoadManifest(cfg)
	if err != nil {
		return err
	}
	predictor, closePredictor, err := bootstrap.NewPredictor(cfg, manifest, nil, "pneumoctl")
	if err != nil {
		return err
	}
	defer closePredictor()
	classifier := usecase.NewClassificationUseCase(imaging.NewPreprocessor(manifest.ImageSize), predictor)

	var recorder ports.PatientRecorder
	if record {
		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer closeStores(stores)
		recorder = usecase.NewPatientRecordUseCase(stores.Patients, nil)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Classifying images"),
		progressbar.OptionClearOnFinish(),
	)

	rows := make([]classifyRow, 0, len(files))
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		row := classifyFile(ctx, classifier, file, mode, confirm)
		if row.Err == nil && recorder != nil && row.Workflow.Terminal() {
			if _, err := recorder.Record(ctx, owner, row.Workflow); err != nil {
				row.Err = err
			}
		}
		rows = append(rows, row)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if err := printClassifications(cmd.OutOrStdout(), rows); err != nil {
		return err
	}
	if failed := countFailed(rows); failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(rows))
	}
	return ctx.Err()
}

func classifyFile(ctx context.Context, classifier ports.ClassificationWorkflow, file string, mode domain.Mode, confirm bool) classifyRow {
	row := classifyRow{File: file}
	mimeType, ok := imageTypes[strings.ToLower(filepath.Ext(file))]
	if !ok {
		row.Err = domain.WrapError(domain.ErrInvalidImage, "classify", fmt.Errorf("unsupported file type %q", filepath.Ext(file)))
		return row
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		row.Err = err
		return row
	}

	wf, err := classifier.Start(ctx, ports.StartClassification{
		Mode:        mode,
		Image:       raw,
		MimeType:    mimeType,
		PatientName: patientNameFromFile(file),
	})
	if err != nil {
		row.Err = err
		return row
	}
	row.Workflow = wf
	if confirm && wf.AwaitingConfirmation() {
		row.Err = classifier.Confirm(ctx, wf)
	}
	return row
}

func patientNameFromFile(file string) string {
	base := filepath.Base(file)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}

func printClassifications(w io.Writer, rows []classifyRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTAGE 1\tRESULT\tCONFIDENCE\tSTATUS")
	for _, row := range rows {
		stage1, result, confidence := "-", "-", "-"
		status := "done"
		if wf := row.Workflow; wf != nil {
			if wf.Stage1 != nil {
				stage1 = fmt.Sprintf("%s (%s)", wf.Stage1.Label, wf.Stage1.DisplayConfidence())
			}
			if wf.Final != nil {
				result = string(wf.Final.Label)
				confidence = wf.Final.DisplayConfidence()
			}
			switch {
			case wf.AwaitingConfirmation():
				status = "awaiting confirmation"
			case wf.RecordID != "":
				status = "recorded " + wf.RecordID
			}
		}
		if row.Err != nil {
			status = "error: " + row.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.File, stage1, result, confidence, status)
	}
	return tw.Flush()
}

func countFailed(rows []classifyRow) int {
	n := 0
	for _, row := range rows {
		if row.Err != nil {
			n++
		}
	}
	return n
}
