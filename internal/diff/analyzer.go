// Package diff computes structured change records between two content
// snapshots: a line-level alignment, a change taxonomy, keyword-driven
// impact levels, and compliance framework tagging. It is pure and does
// no I/O, so it is safe to call concurrently.
package diff

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ChangeType classifies one diff segment.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeMoved    ChangeType = "moved"
	ChangeRenamed  ChangeType = "renamed"
)

// The alignment is deterministic, so every change carries the same
// fixed confidence.
const diffConfidence = 0.95

// ComplianceImpact records which regulatory frameworks a change touches.
type ComplianceImpact struct {
	AffectedFrameworks []string  `json:"affected_frameworks"`
	RequiresReview     bool      `json:"requires_review"`
	AnalysisDate       time.Time `json:"analysis_date"`
}

// Change is one contiguous difference between two versions' content.
// LineStart/LineEnd are 1-based and refer to the old content's line
// numbering, matching the alignment's old-side range.
type Change struct {
	Type       ChangeType
	OldContent string
	NewContent string
	LineStart  int
	LineEnd    int
	Confidence float64
	Summary    string
	Impact     ImpactLevel
	Compliance ComplianceImpact
}

// AnalysisError signals that content could not be analyzed. Callers must
// treat it as fatal for the surrounding operation: a version without its
// change records would silently break the change history.
type AnalysisError struct {
	Reason string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("change analysis failed: %s", e.Reason)
}

// Analyzer computes change records from two content strings.
type Analyzer struct{}

// NewAnalyzer creates a change analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze diffs oldContent against newContent and returns one Change per
// non-equal aligned region, ordered by position. Identical content yields
// an empty slice.
func (a *Analyzer) Analyze(oldContent, newContent string) ([]Change, error) {
	if !utf8.ValidString(oldContent) {
		return nil, &AnalysisError{Reason: "old content is not valid UTF-8"}
	}
	if !utf8.ValidString(newContent) {
		return nil, &AnalysisError{Reason: "new content is not valid UTF-8"}
	}

	oldLines := SplitLines(oldContent)
	newLines := SplitLines(newContent)
	now := time.Now().UTC()

	changes := make([]Change, 0)
	for _, op := range Opcodes(oldContent, newContent) {
		if op.Op == OpEqual {
			continue
		}
		oldText := joinRange(oldLines, op.OldStart, op.OldEnd)
		newText := joinRange(newLines, op.NewStart, op.NewEnd)
		changeType := changeTypeFor(op.Op)
		impact := assessImpact(oldText, newText, changeType)

		changes = append(changes, Change{
			Type:       changeType,
			OldContent: oldText,
			NewContent: newText,
			LineStart:  op.OldStart + 1,
			LineEnd:    op.OldEnd,
			Confidence: diffConfidence,
			Summary:    summarize(oldText, newText, changeType),
			Impact:     impact,
			Compliance: complianceImpact(oldText, newText, impact, now),
		})
	}
	return changes, nil
}

func changeTypeFor(op Op) ChangeType {
	switch op {
	case OpInsert:
		return ChangeAdded
	case OpDelete:
		return ChangeDeleted
	default:
		return ChangeModified
	}
}

func joinRange(lines []string, start, end int) string {
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

func summarize(oldText, newText string, changeType ChangeType) string {
	switch changeType {
	case ChangeAdded:
		return fmt.Sprintf("Added %d words of new content", wordCount(newText))
	case ChangeDeleted:
		return fmt.Sprintf("Deleted %d words of content", wordCount(oldText))
	case ChangeModified:
		oldWords := wordCount(oldText)
		newWords := wordCount(newText)
		switch {
		case newWords > oldWords:
			return fmt.Sprintf("Modified content, added %d words", newWords-oldWords)
		case newWords < oldWords:
			return fmt.Sprintf("Modified content, removed %d words", oldWords-newWords)
		default:
			return fmt.Sprintf("Modified %d words of content", oldWords)
		}
	}
	return "Content changed"
}

func complianceImpact(oldText, newText string, impact ImpactLevel, analyzedAt time.Time) ComplianceImpact {
	combined := strings.ToLower(oldText + " " + newText)
	frameworks := affectedFrameworks(combined)
	return ComplianceImpact{
		AffectedFrameworks: frameworks,
		// Critical changes need a human look even when no framework
		// keyword matched.
		RequiresReview: len(frameworks) > 0 || impact == ImpactCritical,
		AnalysisDate:   analyzedAt,
	}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
