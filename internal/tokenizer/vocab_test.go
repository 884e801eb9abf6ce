package tokenizer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeMerges = "#version: 0.2\nt h\nh e\na t\n"

func mustVocab(t *testing.T, merges string) *Vocabulary {
	t.Helper()
	v, err := BuildVocabulary(strings.NewReader(merges), VocabularyOptions{})
	require.NoError(t, err)
	return v
}

func TestBytesToUnicode_Bijection(t *testing.T) {
	table := BytesToUnicode()
	seen := make(map[rune]bool, 256)
	for b, r := range table {
		assert.False(t, seen[r], "rune %U assigned twice", r)
		seen[r] = true
		assert.NotEqual(t, ' ', r, "byte %d maps to a space", b)
	}
	assert.Equal(t, 'a', table['a'])
	assert.Equal(t, rune(256), table[0])
	assert.Equal(t, rune(256+32), table[' '])
	assert.Equal(t, rune(256+67), table[0xAD], "soft hyphen is the last remapped byte")
}

func TestBuildVocabulary_IDAssignment(t *testing.T) {
	v := mustVocab(t, threeMerges)

	assert.Equal(t, 256+256+3+2, v.Size())
	assert.Equal(t, 3, v.MergeCount())

	id, ok := v.ID("!")
	require.True(t, ok)
	assert.Equal(t, 0, id, "'!' is the first visible byte")

	id, _ = v.ID("t")
	assert.Equal(t, int('t'-'!'), id)
	id, _ = v.ID("e" + EndOfWord)
	assert.Equal(t, 256+int('e'-'!'), id)

	for i, tok := range []string{"th", "he", "at", StartOfTextToken, EndOfTextToken} {
		id, ok := v.ID(tok)
		require.True(t, ok, tok)
		assert.Equal(t, 512+i, id, tok)
	}
	assert.Equal(t, 515, v.StartOfText())
	assert.Equal(t, 516, v.EndOfText())

	tok, ok := v.Token(512)
	require.True(t, ok)
	assert.Equal(t, "th", tok)
	_, ok = v.Token(v.Size())
	assert.False(t, ok)
}

func TestBuildVocabulary_RanksFollowLineOrder(t *testing.T) {
	v := mustVocab(t, threeMerges)
	for want, pair := range [][2]string{{"t", "h"}, {"h", "e"}, {"a", "t"}} {
		r, ok := v.Rank(pair[0], pair[1])
		require.True(t, ok)
		assert.Equal(t, want, r)
	}
	_, ok := v.Rank("h", "t")
	assert.False(t, ok, "pair order matters")
}

// A repeated merge keeps the rank of its first line. CLIP's shipped merges file has
// no duplicates, so this only matters for hand-edited resources.
func TestBuildVocabulary_DuplicatesKeepFirst(t *testing.T) {
	v := mustVocab(t, "#h\nt h\nt h\nh e\n")
	r, _ := v.Rank("t", "h")
	assert.Equal(t, 0, r)
	r, _ = v.Rank("h", "e")
	assert.Equal(t, 2, r)
	// "th" is added once, so "he" follows it directly.
	id, _ := v.ID("he")
	assert.Equal(t, 513, id)
	assert.Equal(t, 512+2+2, v.Size())
}

func TestBuildVocabulary_MergeEqualToBaseTokenDeduplicated(t *testing.T) {
	// "a" + "</w>" concatenates to an existing base token.
	v := mustVocab(t, "#h\na </w>\n")
	assert.Equal(t, 512+2, v.Size())
}

func TestBuildVocabulary_MaxMerges(t *testing.T) {
	v, err := BuildVocabulary(strings.NewReader(threeMerges), VocabularyOptions{MaxMerges: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, v.MergeCount())
	_, ok := v.ID("at")
	assert.False(t, ok)
}

func TestBuildVocabulary_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target error
	}{
		{"empty", "", ErrVocabularyEmpty},
		{"header only", "#version: 0.2\n", ErrVocabularyEmpty},
		{"blank lines only", "#version\n\n\n", ErrVocabularyEmpty},
		{"three fields", "#version\nt h e\n", ErrVocabularyMalformed},
		{"one field", "#version\nt h\nx\n", ErrVocabularyMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildVocabulary(strings.NewReader(tt.input), VocabularyOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestBuildVocabulary_CRLF(t *testing.T) {
	v := mustVocab(t, "#version: 0.2\r\nt h\r\nh e\r\n")
	_, ok := v.Rank("t", "h")
	assert.True(t, ok)
}

func TestLoadVocabulary_Missing(t *testing.T) {
	_, err := LoadVocabulary(filepath.Join(t.TempDir(), "nope.txt"), VocabularyOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVocabularyMissing)
}

func TestLoadVocabulary_PlainAndGzip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "merges.txt")
	require.NoError(t, os.WriteFile(plain, []byte(threeMerges), 0600))

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(threeMerges))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	compressed := filepath.Join(dir, "merges.txt.gz")
	require.NoError(t, os.WriteFile(compressed, buf.Bytes(), 0600))

	a, err := LoadVocabulary(plain, VocabularyOptions{})
	require.NoError(t, err)
	b, err := LoadVocabulary(compressed, VocabularyOptions{})
	require.NoError(t, err)
	assert.Equal(t, a.Size(), b.Size())
	assert.Equal(t, a.EndOfText(), b.EndOfText())
}

func TestLoadVocabulary_BadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merges.txt.gz")
	require.NoError(t, os.WriteFile(path, []byte(threeMerges), 0600))
	_, err := LoadVocabulary(path, VocabularyOptions{})
	assert.ErrorIs(t, err, ErrVocabularyMalformed)
}
