package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Token ids reserved by the CLIP text encoder vocabulary.
const (
	tokenStartOfText int64 = 49406
	tokenEndOfText   int64 = 49407
)

// ClipTokenizer maps query text to CLIP text-encoder token ids using an
// exported whole-word vocabulary file (one token per line, line number =
// id). This is a simplification of CLIP's BPE scheme: words missing from
// the vocabulary are dropped rather than split into subword pairs, which
// is sufficient for short natural-language queries.
type ClipTokenizer struct {
	vocab map[string]int64
}

// NewClipTokenizer loads the vocabulary file at path.
func NewClipTokenizer(path string) (*ClipTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	return &ClipTokenizer{vocab: vocab}, nil
}

// Tokenize converts text to a fixed-length id sequence: start token, word
// ids, end token, zero padding. Input beyond maxTokens-2 words is truncated.
func (t *ClipTokenizer) Tokenize(text string, maxTokens int) []int64 {
	ids := make([]int64, maxTokens)
	ids[0] = tokenStartOfText
	pos := 1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		word = strings.Trim(word, ".,!?\"'()[]{}:;")
		if word == "" {
			continue
		}
		// CLIP vocab stores whole words with an end-of-word marker.
		if id, ok := t.vocab[word+"</w>"]; ok {
			ids[pos] = id
			pos++
		} else if id, ok := t.vocab[word]; ok {
			ids[pos] = id
			pos++
		}
	}
	ids[pos] = tokenEndOfText
	return ids
}
