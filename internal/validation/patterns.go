package validation

import "regexp"

// Predicate reports whether input looks harmful. Predicates are heuristics:
// false negatives are expected.
type Predicate func(input string) bool

// MatchRegexp adapts a compiled pattern into a Predicate.
func MatchRegexp(re *regexp.Regexp) Predicate {
	return re.MatchString
}

// defaultPatterns cover common prompt-injection phrasings, markup and
// script injection prefixes, and SQL keyword sequences.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)(disregard|forget)\s+(all\s+)?(the\s+|your\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\b`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)\b`),
	regexp.MustCompile(`(?i)(system|admin|root|developer)\s+prompt`),
	regexp.MustCompile(`(?i)new\s+(system\s+)?instructions?\s*:`),
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)<\s*iframe`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)data:[a-z]+/[a-z0-9.+-]+`),
	regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus)\s*=`),
	regexp.MustCompile(`(?i)\b(union\s+(all\s+)?select|drop\s+(table|database)|delete\s+from|insert\s+into|truncate\s+table)\b`),
	regexp.MustCompile(`(?i)('|")\s*or\s+('|")?1('|")?\s*=\s*('|")?1`),
	regexp.MustCompile(`;\s*--`),
}

// DefaultPredicates returns a fresh copy of the built-in rule set.
func DefaultPredicates() []Predicate {
	out := make([]Predicate, 0, len(defaultPatterns))
	for _, re := range defaultPatterns {
		out = append(out, MatchRegexp(re))
	}
	return out
}
