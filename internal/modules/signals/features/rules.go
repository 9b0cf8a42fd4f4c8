package features

import "strings"

type bucket string

const (
	bucketFramework   bucket = "framework"
	bucketInsight     bucket = "insight"
	bucketSpecificity bucket = "specificity"
	bucketQuality     bucket = "quality"
)

// rule is one lexical signal. Rules sharing a non-empty tier are tiers of the
// same signal; only the first match in a tier contributes.
type rule struct {
	name   string
	bucket bucket
	label  string
	weight float64
	tier   string
	match  func(*doc) bool
}

var rules = []rule{
	{name: "framework.naming_phrase", bucket: bucketFramework, label: "naming phrase", weight: 0.6,
		match: func(d *doc) bool { return namingRE.MatchString(d.raw) }},
	{name: "framework.concept_label", bucket: bucketFramework, label: "capitalized concept label", weight: 0.4,
		match: func(d *doc) bool { return d.conceptLabels() > 0 }},
	{name: "framework.vocabulary_dense", bucket: bucketFramework, label: "framework vocabulary x3+", weight: 0.5, tier: "framework.vocabulary",
		match: func(d *doc) bool { return d.count(frameworkVocab) >= 3 }},
	{name: "framework.vocabulary", bucket: bucketFramework, label: "framework vocabulary", weight: 0.2, tier: "framework.vocabulary",
		match: func(d *doc) bool { return d.count(frameworkVocab) >= 1 }},
	{name: "framework.comparison", bucket: bucketFramework, label: "comparison", weight: 0.4,
		match: func(d *doc) bool { return comparisonRE.MatchString(d.raw) }},
	{name: "framework.analogy", bucket: bucketFramework, label: "analogy", weight: 0.3,
		match: func(d *doc) bool { return analogyRE.MatchString(d.raw) }},
	{name: "framework.definition", bucket: bucketFramework, label: "definition", weight: 0.3,
		match: func(d *doc) bool { return definitionRE.MatchString(d.raw) }},

	{name: "insight.contrarian", bucket: bucketInsight, label: "contrarian marker", weight: 0.4,
		match: func(d *doc) bool { return contrarianRE.MatchString(d.raw) }},
	{name: "insight.causal_dense", bucket: bucketInsight, label: "causal connectives x2+", weight: 0.3, tier: "insight.causal",
		match: func(d *doc) bool { return len(causalRE.FindAllStringIndex(d.raw, 2)) >= 2 }},
	{name: "insight.causal", bucket: bucketInsight, label: "causal connective", weight: 0.15, tier: "insight.causal",
		match: func(d *doc) bool { return causalRE.MatchString(d.raw) }},
	{name: "insight.negation", bucket: bucketInsight, label: "negation density", weight: 0.1,
		match: func(d *doc) bool { return d.negationDensity() >= 0.02 }},
	{name: "insight.question", bucket: bucketInsight, label: "question", weight: 0.1,
		match: func(d *doc) bool { return strings.ContainsRune(d.raw, '?') }},
	{name: "insight.conditional", bucket: bucketInsight, label: "conditional", weight: 0.15,
		match: func(d *doc) bool { return conditionalRE.MatchString(d.raw) }},
	{name: "insight.challenge", bucket: bucketInsight, label: "challenge framing", weight: 0.3,
		match: func(d *doc) bool { return challengeRE.MatchString(d.raw) }},

	{name: "specificity.numbers_dense", bucket: bucketSpecificity, label: "numbers x3+", weight: 0.3, tier: "specificity.numbers",
		match: func(d *doc) bool { return len(numberRE.FindAllStringIndex(d.raw, 3)) >= 3 }},
	{name: "specificity.numbers", bucket: bucketSpecificity, label: "number", weight: 0.15, tier: "specificity.numbers",
		match: func(d *doc) bool { return numberRE.MatchString(d.raw) }},
	{name: "specificity.proper_nouns", bucket: bucketSpecificity, label: "proper noun density", weight: 0.2,
		match: func(d *doc) bool { return d.properNounRatio() >= 0.05 }},
	{name: "specificity.example", bucket: bucketSpecificity, label: "example marker", weight: 0.25,
		match: func(d *doc) bool { return exampleRE.MatchString(d.raw) }},
	{name: "specificity.steps", bucket: bucketSpecificity, label: "step markers", weight: 0.2,
		match: func(d *doc) bool { return len(stepRE.FindAllStringIndex(d.raw, 2)) >= 2 }},
	{name: "specificity.actionable", bucket: bucketSpecificity, label: "actionable tactic", weight: 0.2,
		match: func(d *doc) bool { return actionableRE.MatchString(d.raw) }},

	{name: "quality.length_long", bucket: bucketQuality, label: "250+ words", weight: 0.5, tier: "quality.length",
		match: func(d *doc) bool { return d.words >= 250 }},
	{name: "quality.length_medium", bucket: bucketQuality, label: "150+ words", weight: 0.35, tier: "quality.length",
		match: func(d *doc) bool { return d.words >= 150 }},
	{name: "quality.length_short", bucket: bucketQuality, label: "100+ words", weight: 0.2, tier: "quality.length",
		match: func(d *doc) bool { return d.words >= 100 }},
	{name: "quality.length_thin", bucket: bucketQuality, label: "under 100 words", weight: -0.2, tier: "quality.length",
		match: func(d *doc) bool { return d.words < 100 }},
	{name: "quality.sentences_balanced", bucket: bucketQuality, label: "balanced sentences", weight: 0.25, tier: "quality.sentences",
		match: func(d *doc) bool { return between(d.avgSentenceLen(), 10, 30) }},
	{name: "quality.sentences_ok", bucket: bucketQuality, label: "acceptable sentences", weight: 0.1, tier: "quality.sentences",
		match: func(d *doc) bool { return between(d.avgSentenceLen(), 6, 40) }},
	{name: "quality.vocabulary_rich", bucket: bucketQuality, label: "rich vocabulary", weight: 0.25, tier: "quality.vocabulary",
		match: func(d *doc) bool { return d.contentRatio() >= 0.5 }},
	{name: "quality.vocabulary_ok", bucket: bucketQuality, label: "adequate vocabulary", weight: 0.1, tier: "quality.vocabulary",
		match: func(d *doc) bool { return d.contentRatio() >= 0.4 }},
}

// RuleNames lists the signal names accepted in Weights.Signals.
func RuleNames() []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.name)
	}
	return out
}
