package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/ingest/transcript"
	"github.com/dwander/schedule-parser-v2/pkg/logging"
	"github.com/dwander/schedule-parser-v2/pkg/observability"
)

// Engine selects how a transcript is parsed.
type Engine int

const (
	// EngineClassic runs the compact and block grammars only.
	EngineClassic Engine = iota
	// EngineHybrid runs the grammars with the flexible fallback, then asks
	// the Reformatter to rewrite the transcript when any record lacks date,
	// time, venue or couple.
	EngineHybrid
	// EngineAIOnly runs the flexible extractor over the whole input.
	EngineAIOnly
)

var engineNames = [...]string{
	EngineClassic: "classic",
	EngineHybrid:  "hybrid",
	EngineAIOnly:  "ai_only",
}

// String returns the selector literal of the engine.
func (e Engine) String() string {
	if e >= 0 && int(e) < len(engineNames) {
		return engineNames[e]
	}
	return fmt.Sprintf("engine(%d)", int(e))
}

// MarshalText encodes the engine by name.
func (e Engine) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e Engine) valid() bool {
	return e >= 0 && int(e) < len(engineNames)
}

// EngineNames lists the accepted engine literals.
func EngineNames() []string {
	return append([]string(nil), engineNames[:]...)
}

// ParseEngine maps a selector literal to an Engine. Anything but classic,
// hybrid or ai_only is an error wrapping errors.ErrUnknownEngine.
func ParseEngine(s string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range engineNames {
		if n == name {
			return Engine(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of %s)", scherrors.ErrUnknownEngine, s, strings.Join(engineNames[:], ", "))
}

// ExtractOptions configure the extractors.
type ExtractOptions struct {
	// Now supplies the current time for year and weekday guesses.
	Now func() time.Time

	// DefaultAlbum is implied by a bare "기본" or a brand without an album.
	DefaultAlbum string

	// Tagger enables the tagged flexible path. Nil means heuristics only.
	Tagger Tagger

	// Flexible allows lines and blocks the grammars reject to be read by
	// ExtractFlexible.
	Flexible bool
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.DefaultAlbum == "" {
		o.DefaultAlbum = DefaultAlbum
	}
	return o
}

// Reformatter rewrites a transcript into the manager block grammar. An
// error or empty output means it had nothing to offer.
type Reformatter interface {
	Reformat(ctx context.Context, text string) (string, error)
}

// ReformatterFunc adapts a function to the Reformatter interface.
type ReformatterFunc func(ctx context.Context, text string) (string, error)

// Reformat calls f(ctx, text).
func (f ReformatterFunc) Reformat(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Options configure a Parser. Every field is optional.
type Options struct {
	Now            func() time.Time
	Tagger         Tagger
	Reformatter    Reformatter
	Logger         logging.Logger
	Metrics        *observability.ParserMetrics
	Tracer         *observability.Tracer
	DefaultManager string
	DefaultAlbum   string
}

// Parser extracts booking records from transcripts. It holds only
// configuration and is safe for concurrent use.
type Parser struct {
	opts   Options
	log    logging.Logger
	tracer *observability.Tracer
}

// NewParser creates a Parser.
func NewParser(opts Options) *Parser {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultManager == "" {
		opts.DefaultManager = DefaultManager
	}
	if opts.DefaultAlbum == "" {
		opts.DefaultAlbum = DefaultAlbum
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NewTracer()
	}
	return &Parser{opts: opts, log: log, tracer: tracer}
}

// Parse extracts the bookings in text with the given engine. Records come
// back deduplicated by (date, time, couple) in encounter order. The only
// error is an engine outside the known set; malformed text yields fewer or
// flagged records.
func (p *Parser) Parse(ctx context.Context, text string, engine Engine) ([]Record, error) {
	if !engine.valid() {
		return nil, fmt.Errorf("%w: %s", scherrors.ErrUnknownEngine, engine)
	}

	if logging.RunID(ctx) == "" {
		ctx, _ = logging.WithRunID(ctx)
	}
	log := p.log.WithContext(ctx).With(logging.F("engine", engine.String()))

	ctx, span := p.tracer.StartParseSpan(ctx, engine.String())
	defer span.End()
	helper := observability.NewSpanHelper(span)

	start := time.Now()
	text = transcript.Normalize(text)

	var res passResult
	switch engine {
	case EngineClassic:
		res = p.classicPass(ctx, log, text, false)
	case EngineHybrid:
		res = p.hybridPass(ctx, log, text)
	case EngineAIOnly:
		res = p.flexiblePass(ctx, log, text)
	}

	clean, review := 0, 0
	for _, r := range res.records {
		if r.NeedsReview {
			review++
		} else {
			clean++
		}
	}

	p.opts.Metrics.RecordParse(engine.String(), res.format, time.Since(start).Seconds())
	p.opts.Metrics.RecordRecords(engine.String(), clean, review)
	helper.SetParseResult(res.format, res.candidates, len(res.records))
	helper.SetSuccess()

	log.Info("Parsed transcript",
		logging.F("format", res.format),
		logging.F("records", len(res.records)),
		logging.F("needs_review", review),
		logging.F("duration", time.Since(start)))

	return res.records, nil
}

// Inspection describes how a transcript would be read.
type Inspection struct {
	Detection transcript.Detection `json:"detection"`
	Speakers  []string             `json:"speakers"`
	Manager   *ManagerResult       `json:"manager,omitempty"`
	Blocks    int                  `json:"blocks"`
}

// Inspect detects the format of text and, for chat transcripts, the
// speakers and chosen manager. It extracts nothing.
func (p *Parser) Inspect(text string) Inspection {
	text = transcript.Normalize(text)
	in := Inspection{Detection: transcript.Detect(text)}
	if in.Detection.Format == transcript.FormatCompact {
		return in
	}
	blocks := transcript.Segment(text, in.Detection.Format)
	in.Blocks = len(blocks)
	in.Speakers = transcript.Speakers(blocks)
	if len(blocks) > 0 {
		m := IdentifyManager(blocks, p.opts.DefaultManager)
		in.Manager = &m
	}
	return in
}

// passResult is the output of one pass over a transcript.
type passResult struct {
	records    []Record
	format     string
	candidates int
}

func (p *Parser) extractOptions(flexible bool) ExtractOptions {
	eo := ExtractOptions{
		Now:          p.opts.Now,
		DefaultAlbum: p.opts.DefaultAlbum,
		Flexible:     flexible,
	}
	if flexible {
		eo.Tagger = p.opts.Tagger
	}
	return eo
}

func (p *Parser) stage(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.StartStageSpan(ctx, name)
}

// classicPass runs the grammars. With flexible set, blocks without a date
// line and compact lines the grammars reject go to ExtractFlexible.
func (p *Parser) classicPass(ctx context.Context, log logging.Logger, text string, flexible bool) passResult {
	eo := p.extractOptions(flexible)

	_, detectSpan := p.stage(ctx, observability.StageDetect)
	det := transcript.Detect(text)
	detectSpan.End()
	log.Debug("Detected transcript format",
		logging.F("format", det.Format),
		logging.F("desktop_lines", det.Desktop),
		logging.F("mobile_lines", det.Mobile),
		logging.F("compact_lines", det.Compact))

	_, extractSpan := p.stage(ctx, observability.StageExtract)
	var candidates []Record
	extractor := "block"
	switch det.Format {
	case transcript.FormatCompact:
		extractor = "compact"
		candidates = ExtractCompact(text, eo)
	case transcript.FormatDesktop, transcript.FormatMobile, transcript.FormatUnknown:
		candidates = p.extractChat(ctx, log, text, det.Format, eo)
	}
	extractSpan.End()
	p.opts.Metrics.RecordCandidates(extractor, len(candidates))

	_, mergeSpan := p.stage(ctx, observability.StageMerge)
	var m Merger
	m.AddAll(candidates)
	records := m.Records()
	mergeSpan.End()

	log.Debug("Merged candidates",
		logging.F("extractor", extractor),
		logging.F("candidates", len(candidates)),
		logging.F("records", len(records)))

	return passResult{records: records, format: det.Format.String(), candidates: len(candidates)}
}

// extractChat segments a chat transcript and runs the block parser over the
// manager's turns. Text without any speaker line is parsed as one block.
func (p *Parser) extractChat(ctx context.Context, log logging.Logger, text string, format transcript.Format, eo ExtractOptions) []Record {
	_, segSpan := p.stage(ctx, observability.StageSegment)
	blocks := transcript.Segment(text, format)
	segSpan.End()

	if len(blocks) == 0 {
		return ExtractBlock(text, eo)
	}

	_, mgrSpan := p.stage(ctx, observability.StageManager)
	manager := IdentifyManager(blocks, p.opts.DefaultManager)
	observability.NewSpanHelper(mgrSpan).SetManager(manager.Speaker, manager.Fallback)
	mgrSpan.End()

	if manager.Fallback {
		log.Warn("No speaker posted booking lines, using default manager",
			logging.F("manager", manager.Speaker),
			logging.F("speakers", transcript.Speakers(blocks)))
		p.opts.Metrics.RecordManagerFallback()
	} else {
		log.Debug("Identified manager",
			logging.F("manager", manager.Speaker),
			logging.F("score", manager.Score))
	}

	var candidates []Record
	for _, b := range blocks {
		if b.Speaker != manager.Speaker {
			continue
		}
		candidates = append(candidates, ExtractBlock(b.Text(), eo)...)
	}
	return candidates
}

func (p *Parser) flexiblePass(ctx context.Context, log logging.Logger, text string) passResult {
	_, span := p.stage(ctx, observability.StageFlexible)
	defer span.End()

	var m Merger
	candidates := 0
	if r, ok := ExtractFlexible(text, p.extractOptions(true)); ok {
		candidates = 1
		m.Add(r)
	}
	p.opts.Metrics.RecordCandidates("flexible", candidates)
	log.Debug("Flexible extraction finished", logging.F("candidates", candidates))

	return passResult{
		records:    m.Records(),
		format:     transcript.Detect(text).Format.String(),
		candidates: candidates,
	}
}

// hybridPass runs the grammars first and only calls the Reformatter when
// the result is empty or incomplete. Whenever the reformatter cannot help,
// the first-pass records are returned.
func (p *Parser) hybridPass(ctx context.Context, log logging.Logger, text string) passResult {
	first := p.classicPass(ctx, log, text, true)
	if !needsReformat(first.records) {
		p.opts.Metrics.RecordFallback(observability.FallbackNotNeeded)
		return first
	}

	if p.opts.Reformatter == nil {
		log.Warn("Records incomplete and no reformatter configured, keeping first pass",
			logging.F("records", len(first.records)))
		p.opts.Metrics.RecordFallback(observability.FallbackUnavailable)
		return first
	}

	fctx, span := p.stage(ctx, observability.StageFallback)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	log.Info("Records incomplete, reformatting transcript",
		logging.F("records", len(first.records)))

	start := time.Now()
	out, err := p.opts.Reformatter.Reformat(fctx, text)
	if err != nil {
		fe := scherrors.ClassifyError(err, "reformat")
		fe.Duration = time.Since(start)
		helper.SetError(fe, string(fe.Code), scherrors.IsRetryable(fe.Code))
		log.Warn("Reformatter failed, keeping first pass",
			logging.Err(err),
			logging.F("code", string(fe.Code)),
			logging.F("duration", fe.Duration))
		p.opts.Metrics.RecordFallback(observability.FallbackFailed)
		return first
	}
	if strings.TrimSpace(out) == "" {
		log.Warn("Reformatter returned nothing, keeping first pass")
		p.opts.Metrics.RecordFallback(observability.FallbackEmpty)
		return first
	}

	second := p.classicPass(fctx, log, transcript.Normalize(out), false)
	if len(second.records) == 0 {
		log.Warn("Reformatted transcript yielded no records, keeping first pass",
			logging.F("output_chars", len(out)))
		p.opts.Metrics.RecordFallback(observability.FallbackEmpty)
		return first
	}

	helper.SetSuccess()
	p.opts.Metrics.RecordFallback(observability.FallbackUsed)
	log.Info("Using reformatted records",
		logging.F("first_pass", len(first.records)),
		logging.F("records", len(second.records)))

	second.format = first.format
	second.candidates += first.candidates
	return second
}

// needsReformat reports whether records is empty or any record misses one
// of date, time, venue and couple.
func needsReformat(records []Record) bool {
	if len(records) == 0 {
		return true
	}
	for _, r := range records {
		if !r.HasRequired() {
			return true
		}
	}
	return false
}
