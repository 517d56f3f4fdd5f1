package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/spf13/cobra"
)

var ErrNoEvents = errors.New("no_events_in_input")

func newImportCommand(g *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate and store raw payment events",
		Long: `Reads payment events as a JSON array or as one JSON object per line.
Events already stored are left untouched; invalid events are reported and skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raws, err := readEvents(in)
			if err != nil {
				return err
			}

			var svc paymentdomain.Service
			return withApp(cmd.Context(), g, func(ctx context.Context) error {
				results, err := svc.Import(ctx, raws)
				if err != nil {
					return err
				}
				return summarizeImport(cmd.OutOrStdout(), results)
			}, &svc)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "events file, - for stdin")
	return cmd
}

// readEvents accepts either a JSON array or newline-delimited objects.
func readEvents(r io.Reader) ([]paymentdomain.RawEvent, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoEvents
		}
		return nil, err
	}

	var raws []paymentdomain.RawEvent
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&raws); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	} else {
		for {
			var raw paymentdomain.RawEvent
			if err := dec.Decode(&raw); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("decode event %d: %w", len(raws)+1, err)
			}
			raws = append(raws, raw)
		}
	}
	if len(raws) == 0 {
		return nil, ErrNoEvents
	}
	return raws, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if len(bytes.TrimSpace([]byte{b})) == 0 {
			continue
		}
		return b, br.UnreadByte()
	}
}

func summarizeImport(w io.Writer, results []paymentdomain.ImportResult) error {
	var created, existing, rejected int
	for _, res := range results {
		switch {
		case res.Err != nil:
			rejected++
			fmt.Fprintf(w, "rejected %s:%d: %v\n", res.SourceType, res.SourceID, res.Err)
		case res.Created:
			created++
		default:
			existing++
		}
	}
	fmt.Fprintf(w, "imported %d, already present %d, rejected %d\n", created, existing, rejected)
	if rejected > 0 {
		return fmt.Errorf("%d events rejected", rejected)
	}
	return nil
}
