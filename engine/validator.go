package engine

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vitalplane/agentmem/config"
	"github.com/vitalplane/agentmem/core"
)

// Validator checks a generated answer for date and numeric hallucinations
// against the original query and the raw tool outputs. It never retries by
// itself; the engine owns the single-retry policy.
type Validator struct {
	tolerance float64
	log       *logrus.Entry
}

// NewValidator creates a validator with the configured numeric tolerance.
func NewValidator(cfg *config.Config, log *logrus.Logger) *Validator {
	if log == nil {
		log = logrus.New()
	}
	return &Validator{
		tolerance: cfg.NumericTolerance,
		log:       log.WithField("component", "validator"),
	}
}

var monthNames = "january|february|march|april|may|june|july|august|september|october|november|december"

var (
	// "October 15", "October 15th", "15 October"
	monthDayRe = regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthNames + `)\b`)
	isoDateRe  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	slashRe    = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)

	// "72 bpm", "10,000 steps", "7.5 hours", bare "42"
	numberRe = regexp.MustCompile(`(-?\d+(?:,\d{3})*(?:\.\d+)?)\s*(%|[a-zA-Z]+)?`)
)

type numberSpan struct {
	value float64
	unit  string
	raw   string
}

// dateCheck is the outcome of the date phase.
type dateCheck struct {
	ok         bool
	queryDates []string
	mismatches []string
}

// numericCheck is the outcome of the numeric phase.
type numericCheck struct {
	total     int
	matched   []string
	unmatched []string
	score     float64
}

// CheckDates compares date spans in the response against those in the query.
// A response date absent from the query counts as a hard mismatch; if either
// side has no recognizable date there is nothing to compare.
func (v *Validator) CheckDates(query, response string) dateCheck {
	qd := extractDates(query)
	rd := extractDates(response)
	res := dateCheck{ok: true, queryDates: qd}
	if len(qd) == 0 || len(rd) == 0 {
		return res
	}
	known := make(map[string]bool, len(qd))
	for _, d := range qd {
		known[d] = true
	}
	for _, d := range rd {
		if !known[d] {
			res.mismatches = append(res.mismatches, d)
		}
	}
	res.ok = len(res.mismatches) == 0
	return res
}

// CheckNumbers scores the response numbers against tool-output numbers.
// A response number matches when a tool number of the same or absent unit is
// within the relative tolerance, or within 1.0 absolute for small values.
func (v *Validator) CheckNumbers(response string, toolOutputs []string) numericCheck {
	respNums := extractNumbers(stripDates(response))

	var toolNums []numberSpan
	for _, out := range toolOutputs {
		toolNums = append(toolNums, extractNumbers(out)...)
	}

	res := numericCheck{total: len(respNums)}
	if len(respNums) == 0 {
		res.score = 1.0
		return res
	}

	for _, rn := range respNums {
		if matchesAny(rn, toolNums, v.tolerance) {
			res.matched = append(res.matched, rn.raw)
		} else {
			res.unmatched = append(res.unmatched, rn.raw)
		}
	}
	res.score = float64(len(res.matched)) / float64(res.total)
	return res
}

// Validate runs both checks and assembles a ValidationResult. The engine
// consults the individual checks for retry decisions; this is the combined
// view recorded with the turn.
func (v *Validator) Validate(query, response string, toolOutputs []string) *core.ValidationResult {
	dates := v.CheckDates(query, response)
	nums := v.CheckNumbers(response, toolOutputs)

	out := &core.ValidationResult{
		Valid:   true,
		Score:   nums.score,
		Matched: nums.matched,
	}

	for _, d := range dates.mismatches {
		out.Valid = false
		out.Hallucinations = append(out.Hallucinations,
			fmt.Sprintf("date %q does not appear in the question", d))
	}

	if nums.total > 0 && len(toolOutputs) > 0 {
		if nums.score == 0 {
			out.Valid = false
			out.Hallucinations = append(out.Hallucinations, nums.unmatched...)
		} else if len(nums.unmatched) > 0 {
			// Partial mismatch: possibly legitimate paraphrasing, warn only.
			for _, u := range nums.unmatched {
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("number %q not found in tool output", u))
			}
		}
	}

	if !out.Valid {
		v.log.WithFields(logrus.Fields{
			"score":          out.Score,
			"hallucinations": len(out.Hallucinations),
		}).Warn("response failed validation")
	}
	return out
}

// extractDates returns normalized date spans, lowercased with ordinal
// suffixes stripped, so "October 15th" and "october 15" compare equal.
func extractDates(text string) []string {
	var out []string
	for _, m := range monthDayRe.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.ToLower(m[1])+" "+m[2])
	}
	for _, m := range dayMonthRe.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.ToLower(m[2])+" "+m[1])
	}
	out = append(out, isoDateRe.FindAllString(text, -1)...)
	out = append(out, slashRe.FindAllString(text, -1)...)
	return out
}

// stripDates blanks date spans so their day numbers are not mistaken for
// measurements during numeric extraction.
func stripDates(text string) string {
	for _, re := range []*regexp.Regexp{monthDayRe, dayMonthRe, isoDateRe, slashRe} {
		text = re.ReplaceAllString(text, " ")
	}
	return text
}

func extractNumbers(text string) []numberSpan {
	var out []numberSpan
	for _, m := range numberRe.FindAllStringSubmatch(text, -1) {
		val, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		unit := normalizeUnit(m[2])
		if skipUnit(unit) {
			continue
		}
		raw := strings.TrimSpace(m[0])
		out = append(out, numberSpan{value: val, unit: unit, raw: raw})
	}
	return out
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(unit)
	if len(u) > 2 && strings.HasSuffix(u, "s") && u != "ms" {
		u = strings.TrimSuffix(u, "s")
	}
	return u
}

// skipUnit drops spans whose trailing word is clearly not a unit of measure,
// like "7 days ago" or "3 of".
var nonUnitWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true,
	"on": true, "at": true, "to": true, "ago": true, "time": true, "i": true,
	"it": true, "or": true, "but": true, "with": true, "than": true,
	"am": true, "pm": true, "from": true, "per": true, "for": true,
	"is": true, "wa": true, "were": true, "more": true, "le": true,
}

func skipUnit(unit string) bool {
	return nonUnitWords[unit]
}

func matchesAny(rn numberSpan, toolNums []numberSpan, tolerance float64) bool {
	for _, tn := range toolNums {
		if !unitsCompatible(rn.unit, tn.unit) {
			continue
		}
		diff := math.Abs(rn.value - tn.value)
		if diff < 1.0 {
			return true
		}
		if tn.value != 0 && diff/math.Abs(tn.value) <= tolerance {
			return true
		}
	}
	return false
}

func unitsCompatible(a, b string) bool {
	return a == b || a == "" || b == ""
}
