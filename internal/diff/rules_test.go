package diff

import "testing"

func TestImpactRuleOrdering(t *testing.T) {
	// Critical keywords win even when high-impact keywords are present too.
	got := assessImpact("the policy text", "the policy is mandatory", ChangeModified)
	if got != ImpactCritical {
		t.Fatalf("critical keyword must outrank high-impact keyword, got %s", got)
	}

	// High-impact keywords win over the change-type fallbacks: an addition
	// would otherwise rank medium.
	got = assessImpact("", "new approval step for the team", ChangeAdded)
	if got != ImpactHigh {
		t.Fatalf("expected high for keyword addition, got %s", got)
	}
}

func TestImpactKeywordsCaseInsensitive(t *testing.T) {
	got := assessImpact("", "This section is MANDATORY.", ChangeAdded)
	if got != ImpactCritical {
		t.Fatalf("keyword match must ignore case, got %s", got)
	}
}

func TestAffectedFrameworksStableOrder(t *testing.T) {
	combined := "cardholder data and personal data and patient records"
	frameworks := affectedFrameworks(combined)
	want := []string{"GDPR", "HIPAA", "PCI DSS"}
	if len(frameworks) != len(want) {
		t.Fatalf("expected %v, got %v", want, frameworks)
	}
	for i := range want {
		if frameworks[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, frameworks)
		}
	}
}
