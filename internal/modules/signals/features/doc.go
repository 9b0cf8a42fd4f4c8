package features

import (
	"strings"
	"unicode"
)

// doc is the tokenized form of one chunk, computed once per extraction.
type doc struct {
	raw   string
	words int

	tokens    []string
	lower     []string
	sentences []string
}

func parse(text string) *doc {
	d := &doc{raw: text, words: len(strings.Fields(text))}
	d.tokens = tokenRE.FindAllString(text, -1)
	d.lower = make([]string, len(d.tokens))
	for i, t := range d.tokens {
		d.lower[i] = strings.ToLower(t)
	}
	for _, s := range sentenceRE.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			d.sentences = append(d.sentences, s)
		}
	}
	return d
}

func (d *doc) count(words map[string]struct{}) int {
	n := 0
	for _, w := range d.lower {
		if _, ok := words[w]; ok {
			n++
		}
	}
	return n
}

// conceptLabels counts capitalized multi-word labels ("Leverage Loop") after
// dropping leading stopwords such as a sentence-initial "The".
func (d *doc) conceptLabels() int {
	n := 0
	for _, m := range labelRE.FindAllString(d.raw, -1) {
		parts := strings.Fields(m)
		for len(parts) > 0 && isStopword(strings.ToLower(parts[0])) {
			parts = parts[1:]
		}
		if len(parts) >= 2 {
			n++
		}
	}
	return n
}

// properNounRatio is the share of capitalized non-initial words.
func (d *doc) properNounRatio() float64 {
	if len(d.tokens) == 0 {
		return 0
	}
	n := 0
	for _, s := range d.sentences {
		fields := strings.Fields(s)
		for i, f := range fields {
			if i == 0 {
				continue
			}
			f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) })
			if f != "I" && capWordRE.MatchString(f) {
				n++
			}
		}
	}
	return float64(n) / float64(len(d.tokens))
}

func (d *doc) negationDensity() float64 {
	if len(d.tokens) == 0 {
		return 0
	}
	return float64(len(negationRE.FindAllString(d.raw, -1))) / float64(len(d.tokens))
}

func (d *doc) avgSentenceLen() float64 {
	if len(d.sentences) == 0 {
		return 0
	}
	return float64(d.words) / float64(len(d.sentences))
}

func (d *doc) contentRatio() float64 {
	if len(d.lower) == 0 {
		return 0
	}
	n := 0
	for _, w := range d.lower {
		if !isStopword(w) {
			n++
		}
	}
	return float64(n) / float64(len(d.lower))
}

func between(v, lo, hi float64) bool { return v >= lo && v <= hi }
