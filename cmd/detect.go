package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

// NewDetectCommand creates the detect command.
func NewDetectCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "detect [file|-]",
		Short: "Show how a transcript would be read",
		Long: `Detect the transcript format and, for chat exports, list the speakers
and the speaker chosen as the manager. Nothing is extracted.

The format is decided from the first lines: PC exports start messages with
"[name] [time]", mobile exports with "date, name :", and compact schedules
are one booking per line ("10월 25일 13시 ...").

Examples:
  sched detect KakaoTalk_20250915.txt
  sched detect chat.txt --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runDetect(cmd, deps, path)
		},
	}
}

func runDetect(cmd *cobra.Command, deps *CommandDeps, path string) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}

	text, _, err := readTranscript(deps.Stdin, path)
	if err != nil {
		return err
	}

	parser := schedule.NewParser(schedule.Options{
		Logger:         deps.logger(),
		DefaultManager: cfg.Manager.DefaultName,
	})
	in := parser.Inspect(text)

	w := cmd.OutOrStdout()
	if ok, err := WriteStructured(w, cfg.OutputFormat, in); ok {
		return err
	}
	return writeInspectionText(w, in)
}

func writeInspectionText(w io.Writer, in schedule.Inspection) error {
	d := in.Detection
	fmt.Fprintf(w, "Format:   %s\n", d.Format)
	fmt.Fprintf(w, "Lines:    desktop=%d mobile=%d compact=%d (scanned %d)\n", d.Desktop, d.Mobile, d.Compact, d.Scanned)

	if !d.Format.HasSpeakers() && in.Manager == nil {
		return nil
	}

	fmt.Fprintf(w, "Messages: %d\n", in.Blocks)
	if len(in.Speakers) > 0 {
		fmt.Fprintf(w, "Speakers: %s\n", strings.Join(in.Speakers, ", "))
	}
	if m := in.Manager; m != nil {
		if m.Fallback {
			fmt.Fprintf(w, "Manager:  %s (no speaker scored, default used)\n", m.Speaker)
		} else {
			fmt.Fprintf(w, "Manager:  %s (score %d)\n", m.Speaker, m.Score)
		}
		for _, s := range m.Scores {
			fmt.Fprintf(w, "  %-12s %d\n", s.Speaker, s.Score)
		}
	}
	return nil
}
