// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package citations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotate(t *testing.T) {
	t.Run("single citation at end of answer", func(t *testing.T) {
		answer := "Risk is important."
		cits := []Citation{
			{
				SpanEnd: len(answer) - 1,
				References: []Reference{
					{Location: "s3://bucket/doc.pdf", Page: 3.0},
				},
			},
		}

		result, err := Annotate(answer, cits)
		require.NoError(t, err)

		assert.Equal(t, "Risk is important.[1]", result.Text)
		require.Len(t, result.ReferenceLines, 1)
		assert.Equal(t, "[1]: s3://bucket/doc.pdf (page 3)", result.ReferenceLines[0])
	})

	t.Run("span end equal to answer length is not an error", func(t *testing.T) {
		answer := "Risk is important."
		cits := []Citation{
			{
				SpanEnd: len(answer),
				References: []Reference{
					{Location: "s3://bucket/doc.pdf", Page: 3.0},
				},
			},
		}

		result, err := Annotate(answer, cits)
		require.NoError(t, err)
		assert.Equal(t, "Risk is important.[1]", result.Text)
	})

	t.Run("two citations with continued numbering", func(t *testing.T) {
		answer := "Diversify your portfolio. Rebalance it yearly."
		cits := []Citation{
			{
				SpanEnd: 24, // the period ending the first sentence
				References: []Reference{
					{Location: "s3://bucket/guide.pdf", Page: 12},
				},
			},
			{
				SpanEnd: 45, // the period ending the second sentence
				References: []Reference{
					{Location: "s3://bucket/guide.pdf", Page: 14},
					{Location: "s3://bucket/faq.pdf", Page: 2},
				},
			},
		}

		result, err := Annotate(answer, cits)
		require.NoError(t, err)

		assert.Equal(t, "Diversify your portfolio.[1] Rebalance it yearly.[2, 3]", result.Text)
		require.Len(t, result.ReferenceLines, 3)
		assert.Equal(t, "[1]: s3://bucket/guide.pdf (page 12)", result.ReferenceLines[0])
		assert.Equal(t, "[2]: s3://bucket/guide.pdf (page 14)", result.ReferenceLines[1])
		assert.Equal(t, "[3]: s3://bucket/faq.pdf (page 2)", result.ReferenceLines[2])
	})

	t.Run("citation without references inserts empty marker", func(t *testing.T) {
		answer := "Unsupported claim."
		cits := []Citation{
			{SpanEnd: len(answer) - 1},
		}

		result, err := Annotate(answer, cits)
		require.NoError(t, err)

		assert.Equal(t, "Unsupported claim.[]", result.Text)
		assert.Empty(t, result.ReferenceLines)
	})

	t.Run("overlapping spans are spliced in input order", func(t *testing.T) {
		answer := "abcdef"
		cits := []Citation{
			{SpanEnd: 5, References: []Reference{{Location: "s3://b/one.pdf", Page: 1}}},
			{SpanEnd: 1, References: []Reference{{Location: "s3://b/two.pdf", Page: 2}}},
		}

		result, err := Annotate(answer, cits)
		require.NoError(t, err)

		// The second marker lands relative to the already shifted text. This
		// matches the upstream behavior of applying splices left to right
		// without sorting the citations first.
		assert.Equal(t, "abcde[2]f[1]", result.Text)
		assert.Equal(t, answer, StripMarkers(result.Text))
	})

	t.Run("fractional page numbers truncate toward zero", func(t *testing.T) {
		answer := "Text."
		cits := []Citation{
			{
				SpanEnd: len(answer) - 1,
				References: []Reference{
					{Location: "s3://b/doc.pdf", Page: 3.9},
					{Location: "s3://b/doc.pdf", Page: -2.7},
				},
			},
		}

		result, err := Annotate(answer, cits)
		require.NoError(t, err)

		require.Len(t, result.ReferenceLines, 2)
		assert.Equal(t, "[1]: s3://b/doc.pdf (page 3)", result.ReferenceLines[0])
		assert.Equal(t, "[2]: s3://b/doc.pdf (page -2)", result.ReferenceLines[1])
	})

	t.Run("no citations returns answer unchanged", func(t *testing.T) {
		result, err := Annotate("Nothing cited here.", nil)
		require.NoError(t, err)
		assert.Equal(t, "Nothing cited here.", result.Text)
		assert.Empty(t, result.ReferenceLines)
	})

	t.Run("span end past the answer fails with InvalidSpanError", func(t *testing.T) {
		cits := []Citation{
			{SpanEnd: 12, References: []Reference{{Location: "s3://b/doc.pdf", Page: 1}}},
		}

		_, err := Annotate("short", cits)
		require.Error(t, err)

		var spanErr *InvalidSpanError
		require.True(t, errors.As(err, &spanErr))
		assert.Equal(t, 0, spanErr.CitationIndex)
		assert.Equal(t, 12, spanErr.SpanEnd)
		assert.Equal(t, 5, spanErr.AnswerLength)
	})

	t.Run("negative span end fails", func(t *testing.T) {
		cits := []Citation{{SpanEnd: -1}}
		_, err := Annotate("text", cits)

		var spanErr *InvalidSpanError
		require.True(t, errors.As(err, &spanErr))
	})

	t.Run("pure function returns identical output on repeat calls", func(t *testing.T) {
		answer := "First point. Second point."
		cits := []Citation{
			{SpanEnd: 11, References: []Reference{{Location: "s3://b/a.pdf", Page: 1}}},
			{SpanEnd: 25, References: []Reference{{Location: "s3://b/b.pdf", Page: 2}}},
		}

		first, err := Annotate(answer, cits)
		require.NoError(t, err)
		second, err := Annotate(answer, cits)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestAnnotateRoundTrip(t *testing.T) {
	answers := []string{
		"Risk is important.",
		"Diversify your portfolio. Rebalance it yearly.",
		"One. Two. Three. Four.",
	}
	citationSets := [][]Citation{
		nil,
		{{SpanEnd: 3}},
		{
			{SpanEnd: 3, References: []Reference{{Location: "s3://b/x.pdf", Page: 1}}},
			{SpanEnd: 9, References: []Reference{{Location: "s3://b/y.pdf", Page: 2}, {Location: "s3://b/z.pdf", Page: 3}}},
		},
	}

	for _, answer := range answers {
		for _, cits := range citationSets {
			result, err := Annotate(answer, cits)
			require.NoError(t, err)
			assert.Equal(t, answer, StripMarkers(result.Text))
		}
	}
}

func TestAnnotateReferenceNumbering(t *testing.T) {
	// Reference numbers must be the contiguous integers 1..N in processing
	// order, regardless of how references are distributed over citations.
	answer := "aaaa bbbb cccc dddd"
	cits := []Citation{
		{SpanEnd: 3, References: []Reference{{Location: "s3://b/1.pdf", Page: 1}, {Location: "s3://b/2.pdf", Page: 1}}},
		{SpanEnd: 8},
		{SpanEnd: 13, References: []Reference{{Location: "s3://b/3.pdf", Page: 1}}},
	}

	result, err := Annotate(answer, cits)
	require.NoError(t, err)

	require.Len(t, result.ReferenceLines, 3)
	for i, line := range result.ReferenceLines {
		assert.Contains(t, line, "[", "line %d should carry its number", i)
		assert.Regexp(t, `^\[\d+\]: `, line)
	}
	assert.Regexp(t, `^\[1\]`, result.ReferenceLines[0])
	assert.Regexp(t, `^\[2\]`, result.ReferenceLines[1])
	assert.Regexp(t, `^\[3\]`, result.ReferenceLines[2])

	// Marker for the empty citation is present and empty.
	assert.Contains(t, result.Text, "[]")
	// Third citation is numbered contiguously after the first two.
	assert.Contains(t, result.Text, "[3]")
}

func TestStripMarkers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no markers", "plain text", "plain text"},
		{"single marker", "cited.[1]", "cited."},
		{"multi reference marker", "cited.[1, 2, 3]", "cited."},
		{"empty marker", "cited.[]", "cited."},
		{"marker mid-text", "a[1]b", "ab"},
		{"non marker brackets kept", "a [note] b", "a [note] b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripMarkers(tt.input))
		})
	}
}
