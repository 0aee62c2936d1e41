package diff

import "strings"

// ImpactLevel is the coarse severity assigned to a change.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// criticalKeywords force a critical impact regardless of change type.
var criticalKeywords = []string{
	"shall", "must", "required", "mandatory", "compliance",
	"regulation", "legal", "penalty", "violation", "audit",
	"security", "privacy", "confidential", "restricted",
}

// highImpactKeywords mark changes to governance language.
var highImpactKeywords = []string{
	"policy", "procedure", "process", "control", "standard",
	"responsibility", "authority", "approval", "review",
}

// Similarity thresholds for modified segments.
const (
	majorChangeSimilarity    = 0.3
	moderateChangeSimilarity = 0.7
)

// ruleInput is what an impact rule gets to look at.
type ruleInput struct {
	combined   string // lowercased old + " " + new
	changeType ChangeType
	oldText    string
	newText    string
}

// impactRule inspects a change and either claims it with a level or passes.
type impactRule struct {
	name  string
	apply func(in ruleInput) (ImpactLevel, bool)
}

// impactRules are evaluated in order; the first rule that matches wins.
var impactRules = []impactRule{
	{
		name: "critical-keywords",
		apply: func(in ruleInput) (ImpactLevel, bool) {
			if containsAny(in.combined, criticalKeywords) {
				return ImpactCritical, true
			}
			return "", false
		},
	},
	{
		name: "high-impact-keywords",
		apply: func(in ruleInput) (ImpactLevel, bool) {
			if containsAny(in.combined, highImpactKeywords) {
				return ImpactHigh, true
			}
			return "", false
		},
	},
	{
		name: "deletion",
		apply: func(in ruleInput) (ImpactLevel, bool) {
			if in.changeType == ChangeDeleted {
				return ImpactHigh, true
			}
			return "", false
		},
	},
	{
		name: "addition",
		apply: func(in ruleInput) (ImpactLevel, bool) {
			if in.changeType == ChangeAdded {
				return ImpactMedium, true
			}
			return "", false
		},
	},
	{
		name: "modification-similarity",
		apply: func(in ruleInput) (ImpactLevel, bool) {
			similarity := SimilarityRatio(in.oldText, in.newText)
			switch {
			case similarity < majorChangeSimilarity:
				return ImpactHigh, true
			case similarity < moderateChangeSimilarity:
				return ImpactMedium, true
			default:
				return ImpactLow, true
			}
		},
	},
}

// frameworkNames fixes the evaluation order so tagging output is stable.
var frameworkNames = []string{"GDPR", "SOX", "HIPAA", "ISO27001", "PCI DSS"}

var frameworkKeywords = map[string][]string{
	"GDPR":     {"gdpr", "data protection", "personal data", "privacy", "consent", "data subject"},
	"SOX":      {"sox", "sarbanes", "financial", "internal control", "audit", "financial reporting"},
	"HIPAA":    {"hipaa", "health", "medical", "patient", "phi", "protected health information"},
	"ISO27001": {"iso27001", "information security", "security management", "risk management"},
	"PCI DSS":  {"pci", "payment card", "cardholder", "payment data", "card data"},
}

func assessImpact(oldText, newText string, changeType ChangeType) ImpactLevel {
	in := ruleInput{
		combined:   strings.ToLower(oldText + " " + newText),
		changeType: changeType,
		oldText:    oldText,
		newText:    newText,
	}
	for _, rule := range impactRules {
		if level, ok := rule.apply(in); ok {
			return level
		}
	}
	return ImpactLow
}

// MatchedCriticalKeywords reports which critical keywords occur in text.
func MatchedCriticalKeywords(text string) []string {
	lowered := strings.ToLower(text)
	matched := make([]string, 0)
	for _, keyword := range criticalKeywords {
		if strings.Contains(lowered, keyword) {
			matched = append(matched, keyword)
		}
	}
	return matched
}

func affectedFrameworks(combined string) []string {
	frameworks := make([]string, 0)
	for _, name := range frameworkNames {
		if containsAny(combined, frameworkKeywords[name]) {
			frameworks = append(frameworks, name)
		}
	}
	return frameworks
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
