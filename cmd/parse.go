package cmd

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

// ParseOutput is the structured result of `sched parse`.
type ParseOutput struct {
	Engine   string            `json:"engine" yaml:"engine"`
	Encoding string            `json:"encoding" yaml:"encoding"`
	Count    int               `json:"count" yaml:"count"`
	Review   int               `json:"needs_review" yaml:"needs_review"`
	Records  []schedule.Record `json:"records" yaml:"records"`
}

// NewParseCommand creates the parse command.
func NewParseCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	var (
		engineName string
		sortByDate bool
	)

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Extract bookings from a KakaoTalk transcript",
		Long: `Extract wedding-shoot bookings from a KakaoTalk transcript.

The transcript format (PC export, mobile export, or compact one-line
schedules) is detected automatically. Records missing required fields are
kept and flagged for review.

Engines:
  classic   Grammar-based extraction only (default)
  hybrid    Classic first; incomplete results are rewritten by the LLM
            reformatter and parsed again. Needs an API key.
  ai_only   Free-text extraction over the whole input

Examples:
  # Parse an exported chat
  sched parse KakaoTalk_20250915.txt

  # Read from stdin and print JSON
  pbpaste | sched parse - --output json

  # Use the LLM fallback, sorted by date
  sched parse chat.txt --engine hybrid --sort`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runParse(cmd, deps, path, engineName, sortByDate)
		},
	}

	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "Parsing engine: "+strings.Join(schedule.EngineNames(), ", ")+" (default from config)")
	cmd.Flags().BoolVar(&sortByDate, "sort", false, "Sort records by date and time")

	return cmd
}

func runParse(cmd *cobra.Command, deps *CommandDeps, path, engineName string, sortByDate bool) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}

	engine := cfg.ParsedEngine()
	if engineName != "" {
		if engine, err = schedule.ParseEngine(engineName); err != nil {
			return err
		}
	}

	text, enc, err := readTranscript(deps.Stdin, path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	parser, cleanup, err := deps.newParser(ctx, cfg, engine)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := parser.Parse(ctx, text, engine)
	if err != nil {
		return err
	}
	if sortByDate {
		SortRecords(records)
	}

	out := ParseOutput{
		Engine:   engine.String(),
		Encoding: string(enc),
		Count:    len(records),
		Records:  records,
	}
	for _, r := range records {
		if r.NeedsReview {
			out.Review++
		}
	}

	w := cmd.OutOrStdout()
	if ok, err := WriteStructured(w, cfg.OutputFormat, out); ok {
		return err
	}
	return writeRecordsText(w, out)
}

// SortRecords orders records by date then time. Records without a date
// sort last; ties keep their extraction order.
func SortRecords(records []schedule.Record) {
	slices.SortStableFunc(records, func(a, b schedule.Record) int {
		if (a.Date == "") != (b.Date == "") {
			if a.Date == "" {
				return 1
			}
			return -1
		}
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.Time, b.Time))
	})
}

func writeRecordsText(w io.Writer, out ParseOutput) error {
	if out.Count == 0 {
		_, err := fmt.Fprintln(w, "No bookings found.")
		return err
	}

	fmt.Fprintf(w, "%d booking(s) [engine: %s]", out.Count, out.Engine)
	if out.Review > 0 {
		fmt.Fprintf(w, ", %d need review", out.Review)
	}
	fmt.Fprintln(w)

	for i, r := range out.Records {
		fmt.Fprintln(w, strings.Repeat("-", 40))
		fmt.Fprintf(w, "#%d  %s %s  %s\n", i+1, valueOrDash(r.Date), valueOrDash(r.Time), valueOrDash(r.Location))
		fmt.Fprintf(w, "  신랑신부  %s\n", valueOrDash(r.Couple))
		fmt.Fprintf(w, "  연락처    %s\n", valueOrDash(r.Contact))
		fmt.Fprintf(w, "  브랜드    %s / %s\n", valueOrDash(r.Brand), valueOrDash(r.Album))
		fmt.Fprintf(w, "  작가      %s\n", valueOrDash(r.Photographer))
		fmt.Fprintf(w, "  계약자    %s\n", valueOrDash(r.Manager))
		if r.Price > 0 {
			fmt.Fprintf(w, "  촬영비    %s\n", formatWon(r.Price))
		}
		if r.Memo != "" {
			fmt.Fprintf(w, "  메모      %s\n", r.Memo)
		}
		if r.NeedsReview {
			fmt.Fprintf(w, "  ! 검토 필요: %s\n", r.ReviewReason)
		}
	}
	return nil
}
