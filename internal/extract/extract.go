// Package extract finds report identifiers in assistant answers.
package extract

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fiscalflow/internal/metrics"
)

// Extraction results reported to metrics.
const (
	resultFound  = "found"
	resultAbsent = "absent"
	resultError  = "error"
)

// Recognizer is one strategy for locating a report identifier.
//
// Recognize returns ok=false when the text carries no identifier; that is not
// an error. An error means the strategy could not decide and the next one
// should be tried.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, text string) (id string, ok bool, err error)
}

// Extractor runs recognizers in order. The first one that decides (found or
// absent) ends the chain; a failing recognizer hands over to the next.
type Extractor struct {
	recognizers []Recognizer
	metrics     *metrics.Metrics
}

// New composes recognizers in priority order. Nil entries are skipped so an
// unconfigured primary can be passed as is.
func New(m *metrics.Metrics, recognizers ...Recognizer) *Extractor {
	e := &Extractor{metrics: m}
	for _, r := range recognizers {
		if r == nil {
			continue
		}
		if l, ok := r.(*LLMRecognizer); ok && l == nil {
			continue
		}
		e.recognizers = append(e.recognizers, r)
	}
	return e
}

// Extract returns the report identifier carried by text, if any.
func (e *Extractor) Extract(ctx context.Context, text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	for _, r := range e.recognizers {
		id, ok, err := r.Recognize(ctx, text)
		if err != nil {
			e.metrics.ObserveExtraction(r.Name(), resultError)
			log.Warn().Err(err).Str("strategy", r.Name()).Msg("extract: recognizer failed, falling back")
			continue
		}
		if !ok {
			e.metrics.ObserveExtraction(r.Name(), resultAbsent)
			return "", false
		}
		e.metrics.ObserveExtraction(r.Name(), resultFound)
		log.Debug().Str("strategy", r.Name()).Str("report_id", id).Msg("extract: report id found")
		return id, true
	}
	return "", false
}
