package features

import "regexp"

var (
	tokenRE    = regexp.MustCompile(`[A-Za-z0-9]+(?:['’][A-Za-z]+)?`)
	sentenceRE = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	numberRE   = regexp.MustCompile(`\b\d+(?:[.,]\d+)*%?`)
	labelRE    = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	capWordRE  = regexp.MustCompile(`^[A-Z][a-z]+$`)

	namingRE      = regexp.MustCompile(`(?i)\b(?:(?:we|i) call (?:this|it|that)|what (?:we|i) call|(?:is|are) known as|i refer to (?:this|it) as|we refer to (?:this|it) as|(?:is|it's) called)\b`)
	comparisonRE  = regexp.MustCompile(`(?i)\b(?:vs\.?|versus|compared (?:to|with)|rather than|instead of|as opposed to)(?:\s|$)`)
	analogyRE     = regexp.MustCompile(`(?i)\b(?:is like|it's like|just like|similar to|think of it as|analogous to|the same way)\b`)
	definitionRE  = regexp.MustCompile(`(?i)\b(?:is defined as|means that|refers to|the definition of|what (?:this|that) means is)\b`)
	contrarianRE  = regexp.MustCompile(`(?i)\b(?:but actually|counter-?intuitive(?:ly)?|contrary to|most people think|the opposite is true|surprisingly|conventional wisdom|it turns out)\b`)
	causalRE      = regexp.MustCompile(`(?i)\b(?:because|therefore|which means|as a result|so that|that's why|leads to|consequently|thus)\b`)
	negationRE    = regexp.MustCompile(`(?i)\b(?:not|no|never|nothing|none|nobody)\b|n't\b`)
	conditionalRE = regexp.MustCompile(`(?i)\b(?:if|unless|only when|assuming)\b`)
	challengeRE   = regexp.MustCompile(`(?i)\b(?:the problem is|the mistake|the trap|what's wrong|the issue is|(?:people|most) get (?:this|it) wrong|the real reason)\b`)
	exampleRE     = regexp.MustCompile(`(?i)(?:\bfor (?:example|instance)\b|\bsuch as\b|\be\.g\.|\bcase study\b|\blet me give you\b|\bhere's an example\b)`)
	stepRE        = regexp.MustCompile(`(?i)\b(?:first(?:ly)?|second(?:ly)?|third(?:ly)?|step (?:one|two|three|\d+)|next|finally|lastly)\b`)
	actionableRE  = regexp.MustCompile(`(?i)\b(?:you should|you can|try to|make sure|start by|the key is|do this|here's how|how to)\b`)
)

var frameworkVocab = wordSet(
	"framework", "frameworks", "model", "models", "pattern", "patterns",
	"principle", "principles", "system", "systems", "methodology", "playbook",
	"heuristic", "heuristics", "law", "laws", "rule", "rules",
)

var stopwords = wordSet(
	"a", "an", "the", "and", "or", "but", "if", "then", "so", "of", "to", "in", "on", "at",
	"by", "for", "with", "from", "as", "is", "are", "was", "were", "be", "been", "being",
	"it", "its", "this", "that", "these", "those", "there", "i", "you", "he", "she", "we",
	"they", "me", "him", "her", "us", "them", "my", "your", "our", "their", "do", "does",
	"did", "have", "has", "had", "not", "no", "just", "very", "really", "all", "any", "some",
	"what", "which", "who", "when", "where", "why", "how", "because", "about", "into", "than",
	"too", "can", "will", "would", "should", "could", "also", "like", "um", "uh", "yeah",
	"okay", "ok", "well", "now", "here", "up", "out", "first", "second", "third", "next",
	"finally",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func isStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}
