package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/usecase"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/export/xlsx"
)

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect patient records",
	}
	cmd.PersistentFlags().String("owner", "", "username owning the records")
	_ = cmd.MarkPersistentFlagRequired("owner")
	cmd.AddCommand(recordsListCmd())
	cmd.AddCommand(recordsExportCmd())
	return cmd
}

func recordsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List patient records of an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			stores, err := openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores(stores)

			records, err := usecase.NewPatientRecordUseCase(stores.Patients, nil).List(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no patient records for %s\n", owner)
				return nil
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}
}

func recordsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export patient records of an owner to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			out, _ := cmd.Flags().GetString("out")

			stores, err := openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores(stores)

			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			records := usecase.NewPatientRecordUseCase(stores.Patients, xlsx.NewExporter())
			if err := records.Export(cmd.Context(), owner, file); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported records of %s to %s\n", owner, out)
			return nil
		},
	}
	cmd.Flags().String("out", "patients.xlsx", "output file")
	return cmd
}

func printRecords(w io.Writer, records []domain.PatientRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCLASSIFICATION\tCONFIDENCE\tRECORDED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.PatientID,
			rec.PatientName,
			rec.Classification,
			domain.FormatConfidence(rec.Confidence),
			rec.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return tw.Flush()
}
