package tokenizer

// symbols splits a byte-encoded word into single-rune symbols and marks the last one
// with EndOfWord.
func symbols(word []rune) []string {
	out := make([]string, len(word))
	for i, r := range word {
		out[i] = string(r)
	}
	if len(out) > 0 {
		out[len(out)-1] += EndOfWord
	}
	return out
}

// lowestRankPair scans adjacent symbols and returns the ranked pair with the smallest
// rank. found is false when no adjacent pair has a rank, which ends the merge loop.
func (v *Vocabulary) lowestRankPair(syms []string) (pair MergePair, found bool) {
	best := -1
	for i := 0; i+1 < len(syms); i++ {
		p := MergePair{Left: syms[i], Right: syms[i+1]}
		r, ok := v.ranks[p]
		if !ok {
			continue
		}
		if best < 0 || r < best {
			best = r
			pair = p
		}
	}
	return pair, best >= 0
}

// mergePair joins every non-overlapping occurrence of pair, scanning left to right.
func mergePair(syms []string, pair MergePair) []string {
	out := make([]string, 0, len(syms))
	for i := 0; i < len(syms); {
		if i+1 < len(syms) && syms[i] == pair.Left && syms[i+1] == pair.Right {
			out = append(out, pair.Left+pair.Right)
			i += 2
			continue
		}
		out = append(out, syms[i])
		i++
	}
	return out
}

// bpe applies merges to a byte-encoded word until no ranked pair remains or the word
// is a single symbol.
func (v *Vocabulary) bpe(word []rune) []string {
	syms := symbols(word)
	for len(syms) > 1 {
		pair, found := v.lowestRankPair(syms)
		if !found {
			break
		}
		syms = mergePair(syms, pair)
	}
	return syms
}
