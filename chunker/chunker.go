// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package chunker splits document text into ordered, overlapping chunks.
//
// Chunk order is the only input to point identity, so every splitter here is
// a pure function of its input and settings.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/pdfrag/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter kinds accepted by New.
const (
	KindWindow   = "window"
	KindSentence = "sentence"
)

// ErrInvalidWindow indicates chunk settings outside 0 <= overlap < size.
var ErrInvalidWindow = fmt.Errorf("%w: chunk overlap must satisfy 0 <= overlap < size", core.ErrInput)

// Splitter turns one text into an ordered sequence of chunk texts.
type Splitter interface {
	SplitText(text string) ([]string, error)
}

func checkWindow(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	return nil
}

// Split slides a window of size runes over text, advancing size-overlap runes
// each step. The last chunk may be shorter. Empty text yields no chunks.
func Split(text string, size, overlap int) ([]string, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Window is a Splitter using fixed rune windows.
type Window struct {
	size    int
	overlap int
}

// NewWindow creates a fixed-window splitter.
func NewWindow(size, overlap int) (*Window, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Window{size: size, overlap: overlap}, nil
}

func (w *Window) SplitText(text string) ([]string, error) {
	return Split(text, w.size, w.overlap)
}

// Sentence is a Splitter that prefers paragraph, line and sentence boundaries
// and falls back to words. Sizes are measured in runes.
type Sentence struct {
	splitter textsplitter.RecursiveCharacter
}

// NewSentence creates a boundary-aware splitter.
func NewSentence(size, overlap int) (*Sentence, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Sentence{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

func (s *Sentence) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	return s.splitter.SplitText(text)
}

// New returns the splitter named by kind. An empty kind selects the sentence splitter.
func New(kind string, size, overlap int) (Splitter, error) {
	switch kind {
	case KindSentence, "":
		return NewSentence(size, overlap)
	case KindWindow:
		return NewWindow(size, overlap)
	default:
		return nil, fmt.Errorf("%w: unknown splitter %q", core.ErrInput, kind)
	}
}

// Chunks splits every page and numbers the results contiguously from zero.
// Blank pages and blank chunks are skipped.
func Chunks(sourceID string, pages []string, splitter Splitter) ([]core.Chunk, error) {
	var chunks []core.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		texts, err := splitter.SplitText(page)
		if err != nil {
			return nil, err
		}
		for _, text := range texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunks = append(chunks, core.Chunk{
				SourceID: sourceID,
				Index:    len(chunks),
				Text:     text,
			})
		}
	}
	return chunks, nil
}
