package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lexvault/api/internal/diff"
	"lexvault/api/internal/version"
)

// comparer is the slice of the version service the exporter needs.
type comparer interface {
	Compare(ctx context.Context, documentID int64, versionNumber1, versionNumber2 int) (version.Comparison, error)
}

// Service renders change reports from version comparisons.
type Service struct {
	versions comparer
}

// NewService creates a new export service.
func NewService(versions comparer) *Service {
	return &Service{versions: versions}
}

// Export generates a change report in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	comparison, err := s.versions.Compare(ctx, req.DocumentID, req.Version1, req.Version2)
	if err != nil {
		return nil, fmt.Errorf("compare versions: %w", err)
	}

	data := buildTemplateData(req, comparison, time.Now())

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	base := fmt.Sprintf("change-report-doc%d-v%d-v%d", req.DocumentID, req.Version1, req.Version2)
	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(base) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return renderPDF(html, base)
	case FormatDOCX:
		return renderDOCX(html, base)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func buildTemplateData(req Request, comparison version.Comparison, now time.Time) TemplateData {
	data := TemplateData{
		Title:         fmt.Sprintf("Change Report: Document %d, v%d to v%d", req.DocumentID, req.Version1, req.Version2),
		DocumentID:    req.DocumentID,
		Version1:      comparison.Version1.VersionNumber,
		Version2:      comparison.Version2.VersionNumber,
		UploadedBy1:   comparison.Version1.UploadedBy,
		UploadedBy2:   comparison.Version2.UploadedBy,
		CreatedAt1:    comparison.Version1.CreatedAt,
		CreatedAt2:    comparison.Version2.CreatedAt,
		Additions:     comparison.Statistics.Additions,
		Deletions:     comparison.Statistics.Deletions,
		Modifications: comparison.Statistics.Modifications,
		TotalChanges:  comparison.Statistics.TotalChanges,
		GeneratedAt:   now,
	}

	for _, change := range comparison.Changes {
		row := TemplateChange{
			Type:       change.ChangeType,
			LineStart:  change.LineStart,
			LineEnd:    change.LineEnd,
			Summary:    change.ChangeSummary,
			Impact:     change.ImpactAssessment,
			OldContent: change.OldContent,
			NewContent: change.NewContent,
		}
		var compliance diff.ComplianceImpact
		if len(change.ComplianceImpact) > 0 {
			if err := json.Unmarshal(change.ComplianceImpact, &compliance); err == nil {
				row.Frameworks = compliance.AffectedFrameworks
				row.Review = compliance.RequiresReview
			}
		}
		data.Changes = append(data.Changes, row)
	}
	return data
}
