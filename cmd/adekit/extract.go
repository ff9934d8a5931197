package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/domain"
	"adekit/internal/export"
	"adekit/internal/port"
	"adekit/internal/validate"
)

func (a *app) extractCmd() *cobra.Command {
	var markdownPath, markdownURL, schemaPath, model, out, format string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract schema fields from parsed markdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (markdownPath == "") == (markdownURL == "") {
				return fmt.Errorf("exactly one of --markdown or --markdown-url is required: %w", domain.ErrInvalidRequest)
			}
			schema, err := readSchema(schemaPath)
			if err != nil {
				return err
			}
			schemas := validate.NewSchemaValidator(1)
			if err := schemas.ValidateSchema(schema); err != nil {
				return err
			}

			input := port.ExtractInput{MarkdownURL: markdownURL, Schema: schema, Model: model}
			if markdownPath != "" {
				b, err := os.ReadFile(markdownPath)
				if err != nil {
					return fmt.Errorf("reading markdown: %w", err)
				}
				input.Markdown = string(b)
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			res, err := client.Extract(cmd.Context(), input)
			var sve *ade.SchemaViolationError
			switch {
			case errors.As(err, &sve) && res != nil:
				a.log.Warn("partial extraction", zap.String("reason", sve.Message))
			case err != nil:
				return err
			}

			violations, err := schemas.ValidateExtraction(schema, res.Extraction)
			if err != nil {
				return err
			}
			for _, v := range violations {
				a.log.Warn("extraction check", zap.String("violation", v.String()))
			}

			if format == "" {
				format = formatFromPath(out, formatJSON)
			}
			return writeOutput(out, cmd.OutOrStdout(), func(w io.Writer) error {
				switch format {
				case formatJSON:
					return writeJSON(w, res)
				case formatCSV:
					return export.WriteExtractionCSV(w, res)
				default:
					return fmt.Errorf("unknown format %q (want json or csv): %w", format, domain.ErrInvalidRequest)
				}
			})
		},
	}
	cmd.Flags().StringVar(&markdownPath, "markdown", "", "markdown file to extract from")
	cmd.Flags().StringVar(&markdownURL, "markdown-url", "", "URL of the markdown to extract from")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON schema file describing the fields")
	cmd.Flags().StringVar(&model, "model", "", "extraction model (defaults to client.extract_model)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringVar(&format, "format", "", "output format: json or csv (inferred from --out)")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
