package llm

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DesmondChoy/odyssey/pkg/prompt"
)

const (
	// gateMinLength is the accumulated size below which formatting is not
	// judged; short openings legitimately have no break yet.
	gateMinLength = 150

	// gateBytesPerBreak is the expected upper bound on paragraph size.
	// Text with fewer blank-line breaks than length/gateBytesPerBreak is
	// treated as wall-of-text output.
	gateBytesPerBreak = 225

	// gateMaxRegens caps concurrent background regeneration attempts for
	// one chapter.
	gateMaxRegens = 2

	// gateFinalizeWait bounds how long Finalize waits for an in-flight
	// regeneration before falling back to the heuristic.
	gateFinalizeWait = 5 * time.Second
)

// ParagraphGate watches streamed chapter text for missing paragraph
// structure. Observe is called per chunk on the hot path and must stay
// cheap: it appends and, at most twice, launches a background
// regeneration. Finalize resolves the final text, preferring a completed
// regeneration over the heuristic repair. The gate never delays the
// stream itself; the raw chunks are forwarded to the client regardless
// and Finalize feeds the replace_content frame.
type ParagraphGate struct {
	completer TextGenerator
	builder   *prompt.Builder
	logger    *slog.Logger

	mu       sync.Mutex
	buf      strings.Builder
	launched int
	pending  int

	results chan regeneration
	wg      sync.WaitGroup
}

// regeneration is a reformatted snapshot of the stream. covered records
// how much of the buffer the snapshot held at launch; everything past it
// must still come from the live stream.
type regeneration struct {
	text    string
	covered int
}

// NewParagraphGate creates a gate for one chapter's stream.
func NewParagraphGate(completer TextGenerator, builder *prompt.Builder, logger *slog.Logger) *ParagraphGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParagraphGate{
		completer: completer,
		builder:   builder,
		logger:    logger.With("component", "llm.gate"),
		results:   make(chan regeneration, gateMaxRegens),
	}
}

// Observe accumulates a streamed chunk and, when the text so far looks
// unbroken, starts a background regeneration of everything received to
// this point.
func (g *ParagraphGate) Observe(ctx context.Context, chunk string) {
	g.mu.Lock()
	g.buf.WriteString(chunk)
	text := g.buf.String()
	launch := g.launched < gateMaxRegens && needsParagraphRepair(text)
	if launch {
		g.launched++
		g.pending++
	}
	g.mu.Unlock()

	if !launch || g.completer == nil {
		return
	}

	g.wg.Add(1)
	go func(snapshot string) {
		defer g.wg.Done()
		defer func() {
			g.mu.Lock()
			g.pending--
			g.mu.Unlock()
		}()
		out, err := g.completer.CompleteJSON(ctx, g.builder.ComposeReformat(snapshot))
		if err != nil {
			g.logger.WarnContext(ctx, "paragraph regeneration failed", "error", err)
			return
		}
		if !needsParagraphRepair(out) && len(out) >= len(snapshot)/2 {
			select {
			case g.results <- regeneration{text: out, covered: len(snapshot)}:
			default:
			}
		}
	}(text)
}

// Finalize returns the text to present to the client: the raw stream
// when it is already well formed, a regenerated version merged with the
// stream's remainder when one finished in time, or a heuristic
// sentence-boundary repair.
func (g *ParagraphGate) Finalize(ctx context.Context) string {
	g.mu.Lock()
	text := g.buf.String()
	pending := g.pending
	g.mu.Unlock()

	if !needsParagraphRepair(text) {
		return text
	}

	if r, ok := g.bestResult(ctx, pending); ok {
		return mergeRegeneration(r, text)
	}
	g.logger.InfoContext(ctx, "regeneration unavailable, applying heuristic paragraph repair")
	return insertParagraphBreaks(text)
}

// bestResult collects finished regenerations, waiting briefly for an
// in-flight one when none has landed, and keeps the one that covered the
// most of the stream.
func (g *ParagraphGate) bestResult(ctx context.Context, pending int) (regeneration, bool) {
	var best regeneration
	found := false
	for len(g.results) > 0 {
		r := <-g.results
		if !found || r.covered > best.covered {
			best = r
			found = true
		}
	}
	if !found && pending > 0 {
		timer := time.NewTimer(gateFinalizeWait)
		defer timer.Stop()
		select {
		case r := <-g.results:
			best = r
			found = true
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return best, found
}

// mergeRegeneration splices the reformatted snapshot onto the untouched
// remainder of the stream. A regeneration only ever saw the text
// buffered at its launch; the tail, including the choices block, must
// survive from the live stream.
func mergeRegeneration(r regeneration, full string) string {
	if r.covered >= len(full) {
		return r.text
	}
	merged := r.text + full[r.covered:]
	if needsParagraphRepair(merged) {
		merged = insertParagraphBreaks(merged)
	}
	return merged
}

// needsParagraphRepair reports whether text of meaningful length carries
// too few blank-line paragraph breaks.
func needsParagraphRepair(text string) bool {
	if len(text) < gateMinLength {
		return false
	}
	breaks := strings.Count(text, "\n\n")
	return breaks < len(text)/gateBytesPerBreak
}

// insertParagraphBreaks splits run-on text at sentence boundaries,
// grouping roughly three sentences per paragraph. The <choices> block,
// when present, is preserved untouched.
func insertParagraphBreaks(text string) string {
	body, choices := text, ""
	if idx := strings.Index(text, "<choices>"); idx >= 0 {
		body, choices = text[:idx], text[idx:]
	}

	sentences := splitSentences(body)
	if len(sentences) <= 3 {
		return text
	}

	var sb strings.Builder
	for i, s := range sentences {
		sb.WriteString(s)
		if (i+1)%3 == 0 && i != len(sentences)-1 {
			sb.WriteString("\n\n")
		} else if i != len(sentences)-1 {
			sb.WriteString(" ")
		}
	}
	if choices != "" {
		sb.WriteString("\n\n")
		sb.WriteString(choices)
	}
	return sb.String()
}

func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			next := i + 1
			if next >= len(runes) || runes[next] == ' ' || runes[next] == '\n' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
