// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tpkg/tpkg/internal/issue"
	"github.com/tpkg/tpkg/internal/upload"
)

func newUploadCommand(app *App) *cobra.Command {
	var (
		bucket string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload validated packages missing from the bucket",
		Long: `Upload validated packages missing from the bucket.

Every package in the output folder is looked up in the bucket; the missing
ones are validated and uploaded with the descriptor last. Invalid packages
are reported and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bucket == "" {
				bucket = app.cfg.BucketName
			}
			if bucket == "" {
				return issue.NewErrorContext().
					WithOperation("upload").
					WithSuggestion("Set LY_PACKAGE_BUCKET_NAME or pass --bucket").
					Wrap(errors.New("no bucket configured")).
					BuildError()
			}

			store, err := app.openBucket(bucket)
			if err != nil {
				return issue.WrapWithContext(err, "open bucket", bucket)
			}

			u := upload.New(store, app.validator(), upload.WithLogger(app.logger), upload.WithDryRun(dryRun))
			report, err := u.UploadAll(cmd.Context(), app.cfg.OutputFolder)
			if report != nil {
				writeUploadReport(cmd, report, dryRun)
			}
			if err != nil {
				return issue.WrapWithContext(err, "upload", store.Location())
			}
			if len(report.Invalid) > 0 {
				return failed()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket name or server URL (default: bucket_name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate but do not upload")
	return cmd
}

func writeUploadReport(cmd *cobra.Command, r *upload.Report, dryRun bool) {
	out := cmd.OutOrStdout()
	verb := "uploaded"
	if dryRun {
		verb = "would upload"
	}
	for _, name := range r.Uploaded {
		fmt.Fprintf(out, "%s %s %s\n", successIcon, verb, CmdStyle.Render(name))
	}
	for _, name := range r.Present {
		fmt.Fprintf(out, "%s %s already uploaded\n", infoIcon, CmdStyle.Render(name))
	}
	for _, res := range r.Invalid {
		writeResultText(cmd.ErrOrStderr(), res, false)
	}
}
