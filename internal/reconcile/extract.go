package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	errx "github.com/questor-agent/server/internal/core/error"
	logx "github.com/questor-agent/server/pkg/logger"
)

// Marker separates the reply text from the structured fragment in model output.
const Marker = "###JSON###"

// basic safety limits to avoid pathological inputs
const (
	maxContentLen    = 128 * 1024 // 128KB
	maxBraceAttempts = 64
	maxErrSnippet    = 200
)

// ErrNoFragment is wrapped by Extract when no strategy produced a JSON object.
var ErrNoFragment = errors.New("no structured fragment in model output")

// Extraction is a parsed fragment and the text that preceded it.
type Extraction struct {
	Fragment map[string]any
	Prefix   string
	Strategy string
}

// Strategy finds a JSON object in raw model output.
type Strategy interface {
	Name() string
	TryExtract(raw string) (*Extraction, bool)
}

// Extractor tries its strategies in order and keeps the first success.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor returns an extractor over the given strategies, or the default
// chain (marker, fenced block, largest balanced braces) when none are given.
func NewExtractor(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies}
}

func DefaultStrategies() []Strategy {
	return []Strategy{
		MarkerStrategy{Marker: Marker},
		FencedStrategy{},
		BraceStrategy{},
	}
}

// Extract runs the strategy chain. The returned error is an *errx.AppError
// wrapping ErrNoFragment; callers treat it as recoverable.
func (e *Extractor) Extract(raw string) (ext *Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "extractor").Msgf("panic recovered: %v", r)
			ext = nil
			err = errx.Parse(fmt.Errorf("extractor panic: %v", r))
		}
	}()

	if len(raw) > maxContentLen {
		logx.Warn().
			Str("component", "extractor").
			Int("max_len", maxContentLen).
			Int("orig_len", len(raw)).
			Msg("content truncated due to size limit")
		raw = raw[:maxContentLen]
	}

	for _, s := range e.strategies {
		if out, ok := s.TryExtract(raw); ok {
			out.Strategy = s.Name()
			out.Prefix = strings.TrimSpace(out.Prefix)
			return out, nil
		}
	}
	return nil, errx.Parse(fmt.Errorf("%w: %q", ErrNoFragment, safeSnippet(raw)))
}

// MarkerStrategy reads the first JSON object after an explicit marker. Text
// after the object is ignored.
type MarkerStrategy struct {
	Marker string
}

func (MarkerStrategy) Name() string { return "marker" }

func (m MarkerStrategy) TryExtract(raw string) (*Extraction, bool) {
	idx := strings.Index(raw, m.Marker)
	if idx < 0 {
		return nil, false
	}
	rest := raw[idx+len(m.Marker):]
	open := strings.IndexByte(rest, '{')
	if open < 0 {
		return nil, false
	}
	// only whitespace or a fence opener may sit between the marker and the object
	gap := strings.TrimSpace(rest[:open])
	if gap != "" && gap != "```" && !strings.EqualFold(gap, "```json") {
		return nil, false
	}
	frag, ok := decodeObjectPrefix(rest[open:])
	if !ok {
		return nil, false
	}
	return &Extraction{Fragment: frag, Prefix: raw[:idx]}, true
}

var fencePattern = regexp.MustCompile("(?s)```(?:[jJ][sS][oO][nN])?[ \\t]*\\r?\\n?\\s*(\\{.*?\\})\\s*```")

// FencedStrategy reads a ```json fenced block (the label is optional).
type FencedStrategy struct{}

func (FencedStrategy) Name() string { return "fenced" }

func (FencedStrategy) TryExtract(raw string) (*Extraction, bool) {
	for _, loc := range fencePattern.FindAllStringSubmatchIndex(raw, -1) {
		frag, ok := decodeObject(raw[loc[2]:loc[3]])
		if ok {
			return &Extraction{Fragment: frag, Prefix: raw[:loc[0]]}, true
		}
	}
	return nil, false
}

// BraceStrategy picks the largest balanced {...} span that decodes as an object.
type BraceStrategy struct{}

func (BraceStrategy) Name() string { return "braces" }

type span struct{ start, end int }

func (BraceStrategy) TryExtract(raw string) (*Extraction, bool) {
	spans := balancedSpans(raw)
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].end-spans[i].start > spans[j].end-spans[j].start
	})
	for i, sp := range spans {
		if i >= maxBraceAttempts {
			break
		}
		if frag, ok := decodeObject(raw[sp.start:sp.end]); ok {
			return &Extraction{Fragment: frag, Prefix: raw[:sp.start]}, true
		}
	}
	return nil, false
}

// balancedSpans returns every matched {...} pair. Braces inside JSON strings
// are skipped once an object is open.
func balancedSpans(s string) []span {
	var (
		stack    []int
		spans    []span
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if len(stack) > 0 {
				inString = true
			}
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			spans = append(spans, span{start: start, end: i + 1})
		}
	}
	return spans
}

func decodeObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func decodeObjectPrefix(s string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
