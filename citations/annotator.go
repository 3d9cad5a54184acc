// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package citations splices inline reference markers into a generated answer
// using the citation spans returned by a knowledge base retrieval.
package citations

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reference is one retrieved source passage backing a citation.
type Reference struct {
	Location string  // storage location of the source document, e.g. an S3 URI
	Page     float64 // page number as reported in the document metadata
}

// Citation claims that the answer text ending at SpanEnd is supported by the
// listed references. SpanEnd indexes the last cited byte of the original,
// unannotated answer.
type Citation struct {
	SpanEnd    int
	References []Reference
}

// AnnotatedAnswer is the answer text with bracketed markers spliced in, plus
// the numbered reference lines the markers point at.
type AnnotatedAnswer struct {
	Text           string
	ReferenceLines []string
}

// InvalidSpanError indicates a citation span that falls outside the answer
// text. It signals malformed upstream data and is never retried.
type InvalidSpanError struct {
	CitationIndex int
	SpanEnd       int
	AnswerLength  int // includes markers inserted before the bad citation was reached
}

func (e *InvalidSpanError) Error() string {
	return fmt.Sprintf("citation %d: span end %d is out of range for answer of length %d",
		e.CitationIndex, e.SpanEnd, e.AnswerLength)
}

// Annotate inserts a bracketed reference marker after each cited span and
// returns the spliced answer together with the ordered reference lines.
//
// Citations are processed strictly in input order, never sorted, and
// reference numbers increase monotonically across the whole call. A citation
// without references still inserts a literal "[]" marker. Stripping every
// marker from the returned text yields the original answer unchanged.
func Annotate(answer string, cits []Citation) (AnnotatedAnswer, error) {
	annotated := answer
	// Span ends index the last cited byte, so insertion goes one past them.
	offset := 1
	refCount := 0
	var lines []string

	for i, citation := range cits {
		if citation.SpanEnd < 0 || citation.SpanEnd > len(annotated) {
			return AnnotatedAnswer{}, &InvalidSpanError{
				CitationIndex: i,
				SpanEnd:       citation.SpanEnd,
				AnswerLength:  len(annotated),
			}
		}

		numbers := make([]string, 0, len(citation.References))
		for _, ref := range citation.References {
			refCount++
			lines = append(lines, FormatReferenceLine(refCount, ref))
			numbers = append(numbers, strconv.Itoa(refCount))
		}

		marker := "[" + strings.Join(numbers, ", ") + "]"
		pos := citation.SpanEnd + offset
		if pos > len(annotated) {
			pos = len(annotated)
		}
		annotated = annotated[:pos] + marker + annotated[pos:]
		offset += len(marker)
	}

	return AnnotatedAnswer{Text: annotated, ReferenceLines: lines}, nil
}

// FormatReferenceLine renders a single numbered reference line. Fractional
// page numbers are truncated toward zero, matching the metadata the document
// ingestion pipeline emits.
func FormatReferenceLine(number int, ref Reference) string {
	return fmt.Sprintf("[%d]: %s (page %d)", number, ref.Location, int(ref.Page))
}

var markerPattern = regexp.MustCompile(`\[(?:\d+(?:, \d+)*)?\]`)

// StripMarkers removes every marker Annotate could have inserted.
func StripMarkers(s string) string {
	return markerPattern.ReplaceAllString(s, "")
}
