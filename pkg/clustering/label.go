package clustering

import (
	"sort"
	"strings"
)

// stopwords excluded from heuristic labels.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"into": true, "what": true, "how": true, "why": true, "when": true,
	"where": true, "which": true, "who": true, "best": true, "top": true,
	"your": true, "you": true, "are": true, "can": true, "does": true,
	"has": true, "have": true, "near": true, "not": true, "that": true,
	"this": true, "was": true, "will": true, "vs": true,
}

// heuristicLabel picks the most frequent non-stopword term (length > 2)
// across member phrases; ties break by term frequency across the full input,
// then alphabetically.
func heuristicLabel(memberPhrases []string, globalFreq map[string]int) string {
	local := map[string]int{}
	for _, phrase := range memberPhrases {
		for _, token := range strings.Fields(phrase) {
			if len(token) > 2 && !stopwords[token] {
				local[token]++
			}
		}
	}
	if len(local) == 0 {
		if len(memberPhrases) > 0 {
			return memberPhrases[0]
		}
		return "misc"
	}

	terms := make([]string, 0, len(local))
	for term := range local {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if local[terms[i]] != local[terms[j]] {
			return local[terms[i]] > local[terms[j]]
		}
		if globalFreq[terms[i]] != globalFreq[terms[j]] {
			return globalFreq[terms[i]] > globalFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	return terms[0]
}

// globalTermFrequencies counts label-eligible terms across all phrases.
func globalTermFrequencies(phrases []string) map[string]int {
	freq := map[string]int{}
	for _, phrase := range phrases {
		for _, token := range strings.Fields(phrase) {
			if len(token) > 2 && !stopwords[token] {
				freq[token]++
			}
		}
	}
	return freq
}
