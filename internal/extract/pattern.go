package extract

import (
	"context"
	"regexp"
)

// noise is what may sit between a label and its number: spaces, markdown
// emphasis, code ticks and emoji (with the variation selector).
const noise = "[\\s*_`~\\p{So}\\x{FE0F}]*"

// reportLabels lists the accepted labels in priority order.
var reportLabels = []string{ //nolint:gochecknoglobals // fixed priority order
	`report[\s_-]?id`,
	`id\s+de(?:l)?\s+(?:reporte|informe)`,
	`(?:reporte|informe)\s+id`,
	`(?:n[úu]mero|n[º°o]\.?)\s+de(?:l)?\s+(?:reporte|informe)`,
	`report\s*(?:number|#)`,
}

// PatternRecognizer matches literal labels followed by a digit run. It never
// fails.
type PatternRecognizer struct {
	patterns []*regexp.Regexp
}

// NewPatternRecognizer compiles the label list.
func NewPatternRecognizer() *PatternRecognizer {
	p := &PatternRecognizer{patterns: make([]*regexp.Regexp, 0, len(reportLabels))}
	for _, label := range reportLabels {
		p.patterns = append(p.patterns,
			regexp.MustCompile(`(?i)`+label+noise+`[:：#=\-]?`+noise+`(\d+)`))
	}
	return p
}

func (p *PatternRecognizer) Name() string { return "pattern" }

// Recognize returns the digits after the first label, trying labels in order.
func (p *PatternRecognizer) Recognize(_ context.Context, text string) (string, bool, error) {
	for _, re := range p.patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true, nil
		}
	}
	return "", false, nil
}
