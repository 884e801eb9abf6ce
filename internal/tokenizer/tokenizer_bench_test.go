package tokenizer

import (
	"strings"
	"testing"
)

func BenchmarkTokenize(b *testing.B) {
	vocab, err := BuildVocabulary(strings.NewReader(threeMerges), VocabularyOptions{})
	if err != nil {
		b.Fatal(err)
	}
	for _, tc := range []struct {
		name  string
		cache int
	}{{"cached", DefaultCacheSize}, {"uncached", 0}} {
		tok, err := New(vocab, WithCacheSize(tc.cache))
		if err != nil {
			b.Fatal(err)
		}
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize("a photo of the cat sitting on a hat at the beach in 2024")
			}
		})
	}
}
