package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yash21saraf/revival.ai/internal/models"
)

const (
	thinkingOpenTag  = "<thinking>"
	thinkingCloseTag = "</thinking>"
)

var (
	// ErrNoStructuredBlock is returned when the finished response has no fenced block.
	ErrNoStructuredBlock = errors.New("no structured block found")
	// ErrMalformedPayload is returned when the fenced block is not valid JSON.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Some model outputs nest the report one level down under one of these keys.
var wrapperKeys = []string{"RevivalStrategy", "revivalStrategy"}

// First fenced block, optionally tagged json in any case.
var fencedBlockRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// ExtractionError is a terminal failure to pull a report out of a finished stream.
// Raw holds the offending block text, if one was found.
type ExtractionError struct {
	Reason error
	Raw    string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Reason, e.Err)
	}
	return e.Reason.Error()
}

func (e *ExtractionError) Is(target error) bool {
	return target == e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor accumulates a streamed model response. It surfaces the
// <thinking> narrative while fragments arrive and parses the trailing
// fenced JSON report once the stream is done.
//
// An Extractor is owned by a single analysis and is not safe for concurrent use.
type Extractor struct {
	buf        strings.Builder
	onThinking func(string)

	openAt   int // index just past the opening tag, -1 until seen
	closed   bool
	scanned  int // buffer length at the previous scan
	thinking string

	metadataRepaired bool
}

// NewExtractor returns an extractor that calls onThinking with the full
// current narrative every time it changes. Each call replaces the previous
// value. onThinking may be nil.
func NewExtractor(onThinking func(string)) *Extractor {
	return &Extractor{onThinking: onThinking, openAt: -1}
}

// Write appends one fragment and re-evaluates the narrative.
func (e *Extractor) Write(fragment string) {
	if fragment == "" {
		return
	}
	prev := e.scanned
	e.buf.WriteString(fragment)
	text := e.buf.String()
	e.scanned = len(text)

	if e.closed {
		return
	}

	if e.openAt < 0 {
		// A tag can straddle fragments, so back up by one tag length.
		from := max(0, prev-len(thinkingOpenTag)+1)
		idx := strings.Index(text[from:], thinkingOpenTag)
		if idx < 0 {
			return
		}
		e.openAt = from + idx + len(thinkingOpenTag)
		prev = e.openAt
	}

	from := max(e.openAt, prev-len(thinkingCloseTag)+1)
	if idx := strings.Index(text[from:], thinkingCloseTag); idx >= 0 {
		e.closed = true
		e.emit(text[e.openAt : from+idx])
		return
	}
	e.emit(text[e.openAt:])
}

func (e *Extractor) emit(narrative string) {
	if narrative == e.thinking {
		return
	}
	e.thinking = narrative
	if e.onThinking != nil {
		e.onThinking(narrative)
	}
}

// Thinking returns the narrative as currently known. It is final once the
// closing tag has been seen.
func (e *Extractor) Thinking() string {
	return e.thinking
}

// ThinkingComplete reports whether the closing tag has been seen.
func (e *Extractor) ThinkingComplete() bool {
	return e.closed
}

// Text returns everything accumulated so far.
func (e *Extractor) Text() string {
	return e.buf.String()
}

// MetadataRepaired reports whether Finalize had to synthesize originalVideoMetadata.
func (e *Extractor) MetadataRepaired() bool {
	return e.metadataRepaired
}

// Finalize extracts the first fenced block from the accumulated text and
// decodes it as a RevivalStrategy.
//
// Missing and malformed blocks are hard failures. Everything past that is
// deliberately lenient: a missing originalVideoMetadata block is filled with
// placeholders, off-type sub-fields are coerced or dropped rather than
// rejected, and nothing is validated, because a partial report is more
// useful to the user than an error screen. Consumers must tolerate missing
// or inconsistent sub-fields.
func (e *Extractor) Finalize() (*models.RevivalStrategy, error) {
	m := fencedBlockRe.FindStringSubmatch(e.buf.String())
	if m == nil {
		return nil, &ExtractionError{Reason: ErrNoStructuredBlock}
	}
	raw := m[1]

	payload, err := decodePayload(raw)
	if err != nil {
		return nil, &ExtractionError{Reason: ErrMalformedPayload, Raw: raw, Err: err}
	}
	payload, err = normalizePayload(unwrapPayload(payload))
	if err != nil {
		return nil, &ExtractionError{Reason: ErrMalformedPayload, Raw: raw, Err: err}
	}

	var strategy models.RevivalStrategy
	if err := json.Unmarshal(payload, &strategy); err != nil {
		return nil, &ExtractionError{Reason: ErrMalformedPayload, Raw: raw, Err: err}
	}

	if strategy.OriginalVideoMetadata == nil {
		strategy.OriginalVideoMetadata = models.DefaultVideoMetadata()
		e.metadataRepaired = true
	}

	return &strategy, nil
}

// decodePayload validates the block as a JSON object, retrying once with
// the quote sanitizer for the usual unescaped-quote mistakes.
func decodePayload(raw string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	err := json.Unmarshal([]byte(raw), &obj)
	if err == nil {
		if obj == nil {
			return nil, errors.New("payload is null")
		}
		return json.RawMessage(raw), nil
	}

	sanitized := sanitizeJSON(raw)
	if sanitizedErr := json.Unmarshal([]byte(sanitized), &obj); sanitizedErr != nil {
		return nil, fmt.Errorf("%w (sanitized version also failed: %v)", err, sanitizedErr)
	}
	log.Printf("Warning: had to sanitize malformed report JSON (%d bytes)", len(raw))
	return json.RawMessage(sanitized), nil
}

// unwrapPayload lifts the report out of a known wrapper key. Any other
// shape, including deeper nesting, passes through unchanged.
func unwrapPayload(payload json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload
	}
	for _, key := range wrapperKeys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		if trimmed := bytes.TrimSpace(inner); len(trimmed) > 0 && trimmed[0] == '{' {
			return inner
		}
	}
	return payload
}

// ProcessStream drives an Extractor from a fragment sequence and finalizes
// it once the sequence ends. An upstream error or a cancelled ctx aborts the
// analysis: no further narrative is emitted and Finalize is not called.
func ProcessStream(ctx context.Context, fragments iter.Seq2[string, error], onThinking func(string)) (*models.RevivalStrategy, *Extractor, error) {
	e := NewExtractor(onThinking)
	for fragment, err := range fragments {
		if err != nil {
			return nil, nil, fmt.Errorf("response stream failed: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		e.Write(fragment)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	strategy, err := e.Finalize()
	if err != nil {
		return nil, e, err
	}
	return strategy, e, nil
}
