package analysis

import (
	"regexp"
	"strings"
)

// ParserMode selects how extracted text is scanned for results.
type ParserMode string

const (
	// ModeLines processes the text line by line. This is the default; it is
	// more robust against the irregular spacing OCR produces.
	ModeLines ParserMode = "lines"
	// ModeDocument runs one multiline scan over the whole text.
	ModeDocument ParserMode = "document"
)

// lineRe captures one lab-test reading. Typical matches:
//
//	Hemoglobin: 13.5 g/dL (12-16)
//	Glucose  98 mg/dL  (70 - 110)
var lineRe = regexp.MustCompile(
	`^\s*(?P<name>[A-Za-z][A-Za-z0-9 _\-/()%]+?)\s*[:\-]?\s+(?P<val>[<>]?\s*\d+[.,]?\d*)?\s*(?P<unit>[A-Za-z/%µμ]+(?:/[A-Za-z]+)?)?\s*(?:\((?P<ref>[^)]+)\))?\s*$`)

var docRe = regexp.MustCompile(`(?m)` + lineRe.String())

// ParsedResult is one extracted reading before persistence.
type ParsedResult struct {
	TestName       string
	Value          string
	Unit           string
	ReferenceRange string
}

// ParseResults scans text for lab-test lines. A match is kept only when the
// name is at least two characters and at least one of value, unit or
// reference range is present; everything else is expected OCR noise and
// skipped silently. Results keep source order and are never deduplicated, so
// repeated panels stay distinct rows.
func ParseResults(text string, mode ParserMode) []ParsedResult {
	if mode == ModeDocument {
		return collect(docRe.FindAllStringSubmatch(text, -1))
	}

	var results []ParsedResult
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if r, ok := toResult(m); ok {
			results = append(results, r)
		}
	}
	return results
}

func collect(matches [][]string) []ParsedResult {
	var results []ParsedResult
	for _, m := range matches {
		if r, ok := toResult(m); ok {
			results = append(results, r)
		}
	}
	return results
}

func toResult(m []string) (ParsedResult, bool) {
	groups := map[string]string{}
	for i, name := range lineRe.SubexpNames() {
		if name != "" && i < len(m) {
			groups[name] = m[i]
		}
	}

	r := ParsedResult{
		TestName:       strings.TrimRight(strings.TrimSpace(groups["name"]), ":"),
		Value:          strings.TrimSpace(groups["val"]),
		Unit:           strings.TrimSpace(groups["unit"]),
		ReferenceRange: strings.TrimSpace(groups["ref"]),
	}
	if len(r.TestName) < 2 {
		return ParsedResult{}, false
	}
	if r.Value == "" && r.Unit == "" && r.ReferenceRange == "" {
		return ParsedResult{}, false
	}
	return r, true
}
