package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/pricing"
)

// NewPriceCommand creates the price command.
func NewPriceCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var brand, album, date string

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Compute the shoot rate for a brand, album and date",
		Long: `Compute the photographer's shoot rate.

Rates depend on the brand family, the album page count and whether the
shoot falls on or after the rate change date. Unknown brands and
unparseable dates price at 0.

Examples:
  sched price --brand "K 세븐스" --date 2025.10.18
  sched price --brand 더그라피 --album 40P --date 2025.08.30 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrice(cmd, deps, brand, album, date)
		},
	}

	cmd.Flags().StringVar(&brand, "brand", "", "Brand name (required)")
	cmd.Flags().StringVar(&album, "album", "", "Album, e.g. 30P (default from config)")
	cmd.Flags().StringVar(&date, "date", "", "Shoot date, YYYY.MM.DD (required)")

	return cmd
}

func runPrice(cmd *cobra.Command, deps *CommandDeps, brand, album, date string) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	if strings.TrimSpace(brand) == "" || strings.TrimSpace(date) == "" {
		return fmt.Errorf("%w: --brand and --date are required", scherrors.ErrValidation)
	}
	if album == "" {
		album = cfg.Album.Default
	}

	q := pricing.Explain(brand, album, date)

	w := cmd.OutOrStdout()
	if ok, err := WriteStructured(w, cfg.OutputFormat, q); ok {
		return err
	}
	return writeQuoteText(w, q)
}

func writeQuoteText(w io.Writer, q pricing.Quote) error {
	if q.Family == pricing.FamilyUnknown {
		_, err := fmt.Fprintf(w, "No rate for brand %q on %s\n", q.Brand, q.Date)
		return err
	}

	period := "before rate change"
	if q.AfterCutover {
		period = "after rate change"
	}
	fmt.Fprintf(w, "Brand:  %s (%s)\n", q.Brand, q.Family)
	fmt.Fprintf(w, "Album:  %s (%d pages)\n", q.Album, q.AlbumPages)
	fmt.Fprintf(w, "Date:   %s (%s)\n", q.Date, period)
	_, err := fmt.Fprintf(w, "Price:  %s\n", formatWon(q.Price))
	return err
}
