// Package security guards against prompt injection in student-submitted
// answer text before it is interpolated into a grader prompt. Adapted
// from pkg/security's PromptInjectionDetector, trimmed to the categories
// most relevant to a student trying to manipulate a grader (system
// override, role hijacking, delimiter injection, jailbreak) and wrapped
// around the student-answer boundary specifically rather than every
// agent input in the framework.
package security

import (
	"regexp"
	"strings"
)

// Category names the kind of injection attempt a pattern matches.
type Category string

const (
	CategorySystemOverride     Category = "system_override"
	CategoryRoleHijacking      Category = "role_hijacking"
	CategoryDelimiterInjection Category = "delimiter_injection"
	CategoryJailbreak          Category = "jailbreak"
)

type pattern struct {
	re       *regexp.Regexp
	category Category
	weight   float64
	label    string
}

// DetectionResult reports whether student-answer text appears to contain
// a prompt injection attempt.
type DetectionResult struct {
	Detected        bool
	Confidence      float64
	Category        Category
	MatchedPatterns []string
}

// Detector scans student-answer text for injection attempts.
type Detector struct {
	patterns []pattern
}

// NewDetector builds a detector with a fixed pattern set. There is no
// sensitivity knob here (unlike pkg/security) because student-answer
// sanitization always runs at one, conservative level — false positives
// just wrap the text in delimiters rather than rejecting it outright.
func NewDetector() *Detector {
	return &Detector{patterns: []pattern{
		{regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions?`), CategorySystemOverride, 1.0, "ignore previous instructions"},
		{regexp.MustCompile(`(?i)disregard\s+(your\s+|all\s+)?instructions?`), CategorySystemOverride, 1.0, "disregard instructions"},
		{regexp.MustCompile(`(?i)forget\s+(everything|all|your\s+instructions?)`), CategorySystemOverride, 1.0, "forget everything"},
		{regexp.MustCompile(`(?i)new\s+instructions?:\s*`), CategorySystemOverride, 0.7, "new instructions"},
		{regexp.MustCompile(`(?i)you\s+are\s+now\s+a`), CategoryRoleHijacking, 1.0, "you are now a"},
		{regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`), CategoryRoleHijacking, 0.9, "pretend to be"},
		{regexp.MustCompile(`(?i)act\s+as\s+(if|though|a)\s+grader`), CategoryRoleHijacking, 0.9, "act as grader"},
		{regexp.MustCompile(`(?i)give\s+(me|this\s+answer)\s+(a\s+)?(perfect|full|10/10|100%)\s*score`), CategoryRoleHijacking, 0.8, "demand top score"},
		{regexp.MustCompile(`(?i)\[INST\]|\[/INST\]`), CategoryDelimiterInjection, 1.0, "instruction tag"},
		{regexp.MustCompile(`(?i)###\s*(System|Instruction|Grader)`), CategoryDelimiterInjection, 0.9, "### delimiter"},
		{regexp.MustCompile(`<\|?(system|user|assistant|im_start|im_end)\|?>`), CategoryDelimiterInjection, 1.0, "chat template tags"},
		{regexp.MustCompile(`(?i)</?system>`), CategoryDelimiterInjection, 0.9, "<system> tag"},
		{regexp.MustCompile(`(?i)jailbreak`), CategoryJailbreak, 0.8, "jailbreak keyword"},
		{regexp.MustCompile(`(?i)bypass\s+(your\s+)?(filter|restriction|rubric|grading)`), CategoryJailbreak, 0.9, "bypass rubric"},
	}}
}

const maxInputSize = 20 * 1024

// Detect analyzes text and reports the highest-weight match, if any.
func (d *Detector) Detect(text string) DetectionResult {
	if text == "" {
		return DetectionResult{}
	}
	if len(text) > maxInputSize {
		text = text[:maxInputSize]
	}
	normalized := stripZeroWidth(text)

	var result DetectionResult
	for _, p := range d.patterns {
		if p.re.MatchString(normalized) {
			result.MatchedPatterns = append(result.MatchedPatterns, p.label)
			if p.weight > result.Confidence {
				result.Confidence = p.weight
				result.Category = p.category
			}
		}
	}
	if len(result.MatchedPatterns) > 0 {
		result.Detected = true
		if len(result.MatchedPatterns) > 1 {
			result.Confidence = min(1.0, result.Confidence+0.1*float64(len(result.MatchedPatterns)-1))
		}
	}
	return result
}

func stripZeroWidth(input string) string {
	var b strings.Builder
	for _, r := range input {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u00AD', '\u2060':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sanitize wraps text in explicit delimiters when an injection attempt is
// detected, so the grader prompt's instructions stay authoritative even
// if the model would otherwise be swayed by interleaved text. When no
// attempt is detected, text is returned unchanged.
func (d *Detector) Sanitize(text string) (string, DetectionResult) {
	result := d.Detect(text)
	if !result.Detected {
		return text, result
	}
	return "<<<STUDENT_ANSWER_START>>>\n" + text + "\n<<<STUDENT_ANSWER_END>>>", result
}
