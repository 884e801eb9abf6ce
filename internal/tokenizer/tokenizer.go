// Package tokenizer implements the CLIP byte-pair-encoding tokenizer: a vocabulary built
// from a merge-rules resource and a Tokenizer producing fixed-length id sequences.
package tokenizer

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultContextLength is the number of ids the CLIP text encoder accepts.
const DefaultContextLength = 77

// DefaultCacheSize is the default number of cached BPE words.
const DefaultCacheSize = 10000

// wordPattern splits lowercased text into coarse words. Each alternative may consume a
// single leading space, which is trimmed before BPE.
var wordPattern = regexp.MustCompile(` ?'s| ?'t| ?'re| ?'ve| ?'m| ?'ll| ?'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+`)

// Tokenizer turns text into CLIP token ids. It is safe for concurrent use.
type Tokenizer struct {
	vocab         *Vocabulary
	contextLength int
	keepEOT       bool
	cache         *wordCache
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithContextLength sets the output length (default 77).
func WithContextLength(n int) Option {
	return func(t *Tokenizer) { t.contextLength = n }
}

// WithCacheSize sets the BPE word cache capacity. Zero or negative disables the cache.
func WithCacheSize(n int) Option {
	return func(t *Tokenizer) {
		if n <= 0 {
			t.cache = nil
			return
		}
		t.cache = newWordCache(n)
	}
}

// WithKeepEndOfText makes truncated sequences end with the end-of-text id. By default a
// long input is cut at the context length and the end-of-text id may be dropped.
func WithKeepEndOfText(keep bool) Option {
	return func(t *Tokenizer) { t.keepEOT = keep }
}

// New creates a tokenizer over vocab.
func New(vocab *Vocabulary, opts ...Option) (*Tokenizer, error) {
	if vocab == nil {
		return nil, fmt.Errorf("tokenizer: nil vocabulary")
	}
	t := &Tokenizer{
		vocab:         vocab,
		contextLength: DefaultContextLength,
		cache:         newWordCache(DefaultCacheSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.contextLength < 2 {
		return nil, fmt.Errorf("tokenizer: context length must be at least 2, got %d", t.contextLength)
	}
	return t, nil
}

// Vocabulary returns the shared vocabulary.
func (t *Tokenizer) Vocabulary() *Vocabulary { return t.vocab }

// ContextLength returns the length of every sequence returned by Tokenize.
func (t *Tokenizer) ContextLength() int { return t.contextLength }

// Words returns the coarse words of text after lowercasing, leading spaces trimmed.
func (t *Tokenizer) Words(text string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(text), -1)
	words := make([]string, 0, len(matches))
	for _, m := range matches {
		if w := strings.TrimPrefix(m, " "); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// BPE returns the merged tokens for a single word.
func (t *Tokenizer) BPE(word string) []string {
	if tokens, ok := t.cache.get(word); ok {
		return tokens
	}
	tokens := t.vocab.bpe(encodeBytes(word))
	t.cache.set(word, tokens)
	return tokens
}

// Encode returns the ids for text without start/end markers, padding or truncation.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, w := range t.Words(text) {
		for _, tok := range t.BPE(w) {
			ids = t.vocab.appendIDs(ids, tok)
		}
	}
	return ids
}

// Tokenize returns exactly ContextLength ids: start-of-text, the encoded text,
// end-of-text, then end-of-text padding. Overlong sequences are truncated.
func (t *Tokenizer) Tokenize(text string) []int64 {
	body := t.Encode(text)
	out := make([]int64, 0, max(t.contextLength, len(body)+2))
	out = append(out, int64(t.vocab.sot))
	for _, id := range body {
		out = append(out, int64(id))
	}
	out = append(out, int64(t.vocab.eot))

	if len(out) > t.contextLength {
		out = out[:t.contextLength]
		if t.keepEOT {
			out[t.contextLength-1] = int64(t.vocab.eot)
		}
	}
	for len(out) < t.contextLength {
		out = append(out, int64(t.vocab.eot))
	}
	return out
}

// Decode turns ids back into text. Special tokens are dropped and word boundaries
// become single spaces.
func (t *Tokenizer) Decode(ids []int64) string {
	var sb strings.Builder
	for _, id := range ids {
		if int(id) == t.vocab.sot || int(id) == t.vocab.eot {
			continue
		}
		tok, ok := t.vocab.Token(int(id))
		if !ok {
			continue
		}
		sb.WriteString(tok)
	}
	text := strings.ReplaceAll(sb.String(), EndOfWord, " ")
	return strings.TrimSpace(string(decodeRunes(text)))
}

// appendIDs appends the id of token to dst. A token missing from the table is split
// into its bytes and each byte is mapped to its base token, the last one carrying
// EndOfWord when the token did. Bytes that still do not resolve are skipped.
func (v *Vocabulary) appendIDs(dst []int, token string) []int {
	if id, ok := v.encoder[token]; ok {
		return append(dst, id)
	}
	body, eow := strings.CutSuffix(token, EndOfWord)
	raw := decodeRunes(body)
	for i, b := range raw {
		id := v.byteTokens[b]
		if eow && i == len(raw)-1 {
			id = v.byteEOWTokens[b]
		}
		if id < 0 {
			continue
		}
		dst = append(dst, id)
	}
	return dst
}
