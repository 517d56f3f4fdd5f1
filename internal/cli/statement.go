package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/statement"
	"github.com/spf13/cobra"
)

func newStatementCommand(g *globalFlags) *cobra.Command {
	var (
		authorID, editorID int64
		month, out         string
	)
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Render an author or editor earnings statement as PDF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (authorID > 0) == (editorID > 0) {
				return errors.New("exactly one of --author or --editor is required")
			}
			m, err := calendar.ParseMonth(month)
			if err != nil {
				return fmt.Errorf("--month: %w", err)
			}

			var renderer *statement.Renderer
			return withApp(cmd.Context(), g, func(ctx context.Context) error {
				var doc io.Reader
				if authorID > 0 {
					doc, err = renderer.RenderAuthor(ctx, authorID, m)
				} else {
					doc, err = renderer.RenderEditor(ctx, editorID, m)
				}
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, doc)
			}, &renderer)
		},
	}
	cmd.Flags().Int64Var(&authorID, "author", 0, "author user id")
	cmd.Flags().Int64Var(&editorID, "editor", 0, "editor id")
	cmd.Flags().StringVar(&month, "month", "", "settlement month (YYYY-MM)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, stdout when empty")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func writeOutput(stdout io.Writer, path string, doc io.Reader) error {
	if path == "" || path == "-" {
		_, err := io.Copy(stdout, doc)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, doc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
