package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Special tokens and the end-of-word marker.
const (
	StartOfTextToken = "<|startoftext|>"
	EndOfTextToken   = "<|endoftext|>"
	EndOfWord        = "</w>"
)

// Errors returned while building a vocabulary. All of them are fatal: tokenization
// cannot proceed and retrying the same resource will not help.
var (
	ErrVocabularyMissing    = errors.New("merge rules resource missing")
	ErrVocabularyEmpty      = errors.New("merge rules resource empty")
	ErrVocabularyMalformed  = errors.New("merge rules resource malformed")
	ErrSpecialTokensMissing = errors.New("special tokens missing from vocabulary")
)

// MergePair is an ordered pair of adjacent symbols that BPE may join.
type MergePair struct {
	Left, Right string
}

// VocabularyOptions controls how the merge rules are read.
type VocabularyOptions struct {
	// MaxMerges keeps only the first MaxMerges rules. Zero or negative keeps all.
	MaxMerges int
}

// Vocabulary is the token<->id table plus merge ranks. It is immutable once built and
// safe to share between goroutines.
type Vocabulary struct {
	encoder       map[string]int
	decoder       []string
	ranks         map[MergePair]int
	byteTokens    [256]int
	byteEOWTokens [256]int
	sot, eot      int
}

// LoadVocabulary reads merge rules from path. Paths ending in ".gz" are decompressed.
func LoadVocabulary(path string, opts VocabularyOptions) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVocabularyMissing, path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrVocabularyMalformed, path, err)
		}
		defer gz.Close()
		r = gz
	}
	vocab, err := BuildVocabulary(r, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vocab, nil
}

// BuildVocabulary parses merge rules from r and builds the vocabulary.
func BuildVocabulary(r io.Reader, opts VocabularyOptions) (*Vocabulary, error) {
	merges, err := ParseMerges(r, opts.MaxMerges)
	if err != nil {
		return nil, err
	}
	return NewVocabulary(merges)
}

// ParseMerges reads merge rules: the first line is a header and is skipped, blank lines
// are ignored, every other line holds exactly two whitespace-separated symbols.
func ParseMerges(r io.Reader, maxMerges int) ([]MergePair, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var merges []MergePair
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d has %d fields, want 2", ErrVocabularyMalformed, lineNo, len(fields))
		}
		merges = append(merges, MergePair{Left: fields[0], Right: fields[1]})
		if maxMerges > 0 && len(merges) == maxMerges {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVocabularyMalformed, err)
	}
	if len(merges) == 0 {
		return nil, ErrVocabularyEmpty
	}
	return merges, nil
}

// NewVocabulary assigns ids in this order: the 256 base byte tokens, the same tokens
// with EndOfWord, one token per merge in rank order, then StartOfTextToken and
// EndOfTextToken. Duplicates keep their first id.
func NewVocabulary(merges []MergePair) (*Vocabulary, error) {
	v := &Vocabulary{
		encoder: make(map[string]int, 512+len(merges)+2),
		decoder: make([]string, 0, 512+len(merges)+2),
		ranks:   make(map[MergePair]int, len(merges)),
	}
	add := func(token string) {
		if _, ok := v.encoder[token]; ok {
			return
		}
		v.encoder[token] = len(v.decoder)
		v.decoder = append(v.decoder, token)
	}

	for _, b := range baseOrder {
		add(string(byteEncoder[b]))
	}
	for _, b := range baseOrder {
		add(string(byteEncoder[b]) + EndOfWord)
	}
	for _, m := range merges {
		add(m.Left + m.Right)
	}
	add(StartOfTextToken)
	add(EndOfTextToken)

	// First occurrence wins; a later duplicate line does not demote the pair.
	for rank, m := range merges {
		if _, ok := v.ranks[m]; !ok {
			v.ranks[m] = rank
		}
	}

	var okSOT, okEOT bool
	v.sot, okSOT = v.encoder[StartOfTextToken]
	v.eot, okEOT = v.encoder[EndOfTextToken]
	if !okSOT || !okEOT {
		return nil, ErrSpecialTokensMissing
	}
	for b := 0; b < 256; b++ {
		v.byteTokens[b] = v.lookupOr(string(byteEncoder[b]), -1)
		v.byteEOWTokens[b] = v.lookupOr(string(byteEncoder[b])+EndOfWord, -1)
	}
	return v, nil
}

func (v *Vocabulary) lookupOr(token string, fallback int) int {
	if id, ok := v.encoder[token]; ok {
		return id
	}
	return fallback
}

// ID returns the id of token.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.encoder[token]
	return id, ok
}

// Token returns the token with the given id.
func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.decoder) {
		return "", false
	}
	return v.decoder[id], true
}

// Rank returns the merge rank of the pair (left, right). Lower ranks merge first.
func (v *Vocabulary) Rank(left, right string) (int, bool) {
	r, ok := v.ranks[MergePair{Left: left, Right: right}]
	return r, ok
}

// Size returns the number of tokens.
func (v *Vocabulary) Size() int { return len(v.decoder) }

// MergeCount returns the number of distinct merge rules.
func (v *Vocabulary) MergeCount() int { return len(v.ranks) }

// StartOfText returns the start-of-text id.
func (v *Vocabulary) StartOfText() int { return v.sot }

// EndOfText returns the end-of-text id.
func (v *Vocabulary) EndOfText() int { return v.eot }
