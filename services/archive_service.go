// services/archive_service.go
package services

import (
	"fmt"
	"log"
	"time"

	"arena-feedback-system/models"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// UploadFunc stores an archive payload and returns its public URL.
// Wired to utils.UploadBytesToR2 in production.
type UploadFunc func(key string, body []byte, contentType string) (string, error)

// ArchiveService exports a partition's resolved matches, their reviews and
// their audience feedback as one YAML document and ships it to object
// storage for offline analysis.
type ArchiveService struct {
	matches  *MatchService
	feedback *FeedbackService
	upload   UploadFunc
}

type archiveDocument struct {
	Category    string         `yaml:"category"`
	Subcategory string         `yaml:"subcategory"`
	Year        int            `yaml:"year"`
	ExportedAt  time.Time      `yaml:"exported_at"`
	Matches     []archiveMatch `yaml:"matches"`
}

type archiveMatch struct {
	ID          string           `yaml:"id"`
	Status      string           `yaml:"status"`
	Placeholder bool             `yaml:"placeholder,omitempty"`
	PaperIDs    []string         `yaml:"paper_ids"`
	Winner      *string          `yaml:"winner_paper_id,omitempty"`
	Paper1Score float64          `yaml:"paper1_score"`
	Paper2Score float64          `yaml:"paper2_score,omitempty"`
	Reviews     []archiveReview  `yaml:"reviews"`
	Likes       int              `yaml:"likes"`
	Dislikes    int              `yaml:"dislikes"`
	Comments    []models.Comment `yaml:"comments"`
	CompletedAt *time.Time       `yaml:"completed_at,omitempty"`
}

type archiveReview struct {
	AgentID string  `yaml:"agent_id"`
	PaperID string  `yaml:"paper_id"`
	Content string  `yaml:"content"`
	Overall float64 `yaml:"overall_score"`
}

func NewArchiveService(matches *MatchService, feedback *FeedbackService, upload UploadFunc) *ArchiveService {
	return &ArchiveService{matches: matches, feedback: feedback, upload: upload}
}

// Export serializes every resolved match in the partition and uploads the
// document. Returns the public URL of the archive.
func (s *ArchiveService) Export(category, subcategory string, year int) (string, error) {
	doc := archiveDocument{
		Category:    category,
		Subcategory: subcategory,
		Year:        year,
		ExportedAt:  time.Now().UTC(),
	}

	s.matches.mu.RLock()
	var terminal []models.Match
	for _, m := range s.matches.matches {
		if m.Category == category && m.Subcategory == subcategory && m.Year == year && m.Terminal() {
			terminal = append(terminal, *m)
		}
	}
	s.matches.mu.RUnlock()

	for _, m := range terminal {
		snapshot, err := s.feedback.Snapshot(m.ID)
		if err != nil {
			snapshot = FeedbackSnapshot{}
		}
		am := archiveMatch{
			ID:          m.ID,
			Status:      m.Status,
			Placeholder: m.Placeholder,
			PaperIDs:    m.PaperIDs(),
			Winner:      m.WinnerPaperID,
			Paper1Score: m.Paper1Score,
			Paper2Score: m.Paper2Score,
			Likes:       snapshot.Likes,
			Dislikes:    snapshot.Dislikes,
			Comments:    snapshot.Comments,
			CompletedAt: m.CompletedAt,
		}
		for _, r := range m.Reviews {
			am.Reviews = append(am.Reviews, archiveReview{
				AgentID: r.AgentID,
				PaperID: r.PaperID,
				Content: r.Content,
				Overall: r.OverallScore,
			})
		}
		doc.Matches = append(doc.Matches, am)
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize archive: %w", err)
	}

	key := fmt.Sprintf("archives/%s.yaml", slug.Make(fmt.Sprintf("%s %s %d", category, subcategory, year)))
	url, err := s.upload(key, body, "application/x-yaml")
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	log.Printf("[ARCHIVE] exported %d matches for %s/%s/%d → %s", len(doc.Matches), category, subcategory, year, url)
	return url, nil
}
