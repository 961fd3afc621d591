package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toybox-labs/toymem-go/pkg/chunker"
)

func TestSplitHardCuts(t *testing.T) {
	// No separators anywhere, so every cut is a hard cut at the size
	// boundary and each segment starts overlap bytes before the previous
	// end.
	text := strings.Repeat("a", 1200)

	segments, err := chunker.Split(text, 500, 100)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, 400, segments[1].Start)
	assert.Equal(t, 800, segments[2].Start)

	assert.Len(t, segments[0].Text, 500)
	assert.Len(t, segments[1].Text, 500)
	assert.Len(t, segments[2].Text, 400)

	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	// A ". " at byte 85 sits inside the lookahead window (size/5 = 20
	// bytes before the hard cut at 100), so the first segment ends there.
	text := strings.Repeat("a", 85) + ". " + strings.Repeat("b", 63)

	segments, err := chunker.Split(text, 100, 20)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.True(t, strings.HasSuffix(segments[0].Text, ". "))
	assert.Len(t, segments[0].Text, 87)
	assert.Equal(t, 67, segments[1].Start)
}

func TestSplitSegmentsMatchSource(t *testing.T) {
	text := "First paragraph about the weather.\n\nSecond paragraph, much longer, " +
		strings.Repeat("with plenty of words to force several segments. ", 20)

	segments, err := chunker.Split(text, 120, 30)
	require.NoError(t, err)
	require.NotEmpty(t, segments)

	assert.Equal(t, 0, segments[0].Start)
	for i, seg := range segments {
		assert.Equal(t, text[seg.Start:seg.Start+len(seg.Text)], seg.Text)
		assert.LessOrEqual(t, len(seg.Text), 120)
		if i > 0 {
			prev := segments[i-1]
			// Consecutive segments overlap, leaving no gaps.
			assert.Less(t, seg.Start, prev.Start+len(prev.Text))
			assert.Greater(t, seg.Start, prev.Start)
		}
	}
	last := segments[len(segments)-1]
	assert.Equal(t, len(text), last.Start+len(last.Text))
}

func TestSplitSingleSegment(t *testing.T) {
	segments, err := chunker.Split("short text", 1000, 200)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "short text", segments[0].Text)
	assert.Equal(t, 0, segments[0].Index)
}

func TestSplitEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		segments, err := chunker.Split(text, 1000, 200)
		assert.NoError(t, err)
		assert.Empty(t, segments)
	}
}

func TestSplitInvalidConfig(t *testing.T) {
	cases := []struct {
		size, overlap int
	}{
		{0, 0},
		{-1, 0},
		{100, -1},
		{100, 100},
		{100, 150},
	}
	for _, tc := range cases {
		_, err := chunker.Split("some text", tc.size, tc.overlap)
		assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 50)

	first, err := chunker.Split(text, 300, 60)
	require.NoError(t, err)
	second, err := chunker.Split(text, 300, 60)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDescribe(t *testing.T) {
	segments, err := chunker.Split(strings.Repeat("a", 1200), 500, 100)
	require.NoError(t, err)

	stats := chunker.Describe(segments)
	assert.Equal(t, 3, stats.TotalSegments)
	assert.Equal(t, 1400, stats.TotalChars)
	assert.Equal(t, 400, stats.MinSize)
	assert.Equal(t, 500, stats.MaxSize)
	assert.InDelta(t, 466.67, stats.AvgSize, 0.01)

	assert.Equal(t, chunker.Stats{}, chunker.Describe(nil))
}
