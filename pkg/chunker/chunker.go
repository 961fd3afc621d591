// Package chunker splits raw text into overlapping segments for embedding.
//
// Sizes are measured in bytes of the input string (the platform ingests
// plain extracted text, so byte and character counts coincide for the
// common case). Segments prefer to end on a paragraph, sentence, or word
// boundary found near the target cut point; callers must not rely on exact
// segment lengths.
package chunker

import (
	"errors"
	"strings"
)

// ErrInvalidConfig is returned when chunk size or overlap is out of range.
var ErrInvalidConfig = errors.New("chunk overlap must be non-negative and smaller than chunk size")

// Default chunking parameters, matching the platform configuration.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators lists boundary markers in preference order, tuned for
// conversational text from speech transcripts.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " "}

// boundaryWindowDivisor bounds how far back from the hard cut point a
// boundary may be chosen: at most chunkSize/boundaryWindowDivisor bytes.
const boundaryWindowDivisor = 5

// Segment is a single chunk of the input text.
type Segment struct {
	// Text is the segment content, including any trailing separator.
	Text string `json:"text"`

	// Index is the 0-based position of the segment within its source.
	Index int `json:"chunk_index"`

	// Start is the byte offset of the segment in the original text.
	Start int `json:"start_position"`
}

// Split divides text into segments of at most size bytes, each overlapping
// the previous one by overlap bytes. It is a pure function of its inputs.
//
// Empty or whitespace-only input yields zero segments and no error.
// overlap must satisfy 0 <= overlap < size, otherwise ErrInvalidConfig
// is returned.
func Split(text string, size, overlap int) ([]Segment, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidConfig
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var segments []Segment
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else if cut, ok := boundaryCut(text, start+overlap, end, size/boundaryWindowDivisor); ok {
			end = cut
		}

		segments = append(segments, Segment{
			Text:  text[start:end],
			Index: len(segments),
			Start: start,
		})

		if end == len(text) {
			break
		}
		start = end - overlap
	}

	return segments, nil
}

// boundaryCut searches the last window bytes before end for the most
// preferred separator and returns the position just after it. A cut is
// only taken if it leaves room for the next segment to make progress,
// which is what the min lower bound guarantees.
func boundaryCut(text string, min, end, window int) (int, bool) {
	lo := end - window
	if lo < min {
		lo = min
	}
	for _, sep := range separators {
		if i := strings.LastIndex(text[lo:end], sep); i >= 0 {
			cut := lo + i + len(sep)
			if cut > min && cut < end {
				return cut, true
			}
		}
	}
	return 0, false
}

// Stats summarizes a segment list.
type Stats struct {
	TotalSegments int     `json:"total_chunks"`
	TotalChars    int     `json:"total_characters"`
	AvgSize       float64 `json:"avg_chunk_size"`
	MinSize       int     `json:"min_chunk_size"`
	MaxSize       int     `json:"max_chunk_size"`
}

// Describe computes size statistics for a segment list.
func Describe(segments []Segment) Stats {
	if len(segments) == 0 {
		return Stats{}
	}

	s := Stats{
		TotalSegments: len(segments),
		MinSize:       len(segments[0].Text),
	}
	for _, seg := range segments {
		n := len(seg.Text)
		s.TotalChars += n
		if n < s.MinSize {
			s.MinSize = n
		}
		if n > s.MaxSize {
			s.MaxSize = n
		}
	}
	s.AvgSize = float64(s.TotalChars) / float64(len(segments))
	return s
}
