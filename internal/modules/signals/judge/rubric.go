package judge

const schemaName = "signal_verdict"

const rubricPrompt = `You are a strict evaluator of short excerpts from podcasts and articles.
Score the excerpt on four buckets, each an integer from 0 to 100:

- frameworkClarity: does it name or lay out a reusable framework, model or principle?
- insightNovelty: does it say something non-obvious, contrarian or surprising?
- tacticalSpecificity: does it give concrete numbers, examples or steps a reader could act on?
- reasoningDepth: does it explain why, with causal reasoning rather than assertion?

Then give overallScore, an integer from 0 to 100 for how worth saving the excerpt is.

Be harsh. Most excerpts land between 30 and 50. Reserve 70 and above for genuinely
exceptional content. Small talk, ads, intros and vague motivation score below 25.

Return only the JSON object required by the schema. Keep "reasoning" to two sentences.`

var verdictFields = []string{
	"frameworkClarity",
	"insightNovelty",
	"tacticalSpecificity",
	"reasoningDepth",
	"overallScore",
}

func verdictSchema() map[string]any {
	props := map[string]any{
		"reasoning": map[string]any{"type": "string"},
	}
	required := []any{"reasoning"}
	for _, f := range verdictFields {
		props[f] = map[string]any{"type": "integer", "minimum": 0, "maximum": 100}
		required = append(required, f)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
