package memory

import "strings"

// Factual data queries are answered by tools, never from cached memory
// ("tool-first policy"). The classifier is keyword-based: quantitative
// phrasings and concrete metric names mark a query as factual, which makes
// the coordinator skip episodic and semantic retrieval for it.

var factualPhrases = []string{
	"how many",
	"how much",
	"how long",
	"how far",
	"average",
	"total",
	"when did",
	"what was my",
	"what is my",
	"last week",
	"last month",
	"yesterday",
	"this week",
	"today",
}

var metricNames = []string{
	"steps",
	"heart rate",
	"bpm",
	"calories",
	"workout",
	"distance",
	"sleep hours",
	"weight",
	"vo2",
	"hrv",
	"active minutes",
}

// IsFactualQuery reports whether the query asks for concrete health data.
func IsFactualQuery(query string) bool {
	q := strings.ToLower(query)
	for _, p := range factualPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	for _, m := range metricNames {
		if strings.Contains(q, m) {
			return true
		}
	}
	return false
}
