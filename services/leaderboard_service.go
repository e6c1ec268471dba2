// services/leaderboard_service.go
package services

import (
	"log"
	"sort"
	"sync"
	"time"

	"arena-feedback-system/models"

	"gorm.io/gorm"
)

// PerformanceNotifier receives the freshly recomputed ranking table for a
// partition. Implemented by the realtime hub.
type PerformanceNotifier interface {
	NotifyPerformance(category, subcategory string, year int, entries []models.RankingEntry)
}

type partitionKey struct {
	Category    string
	Subcategory string
	Year        int
}

// LeaderboardService maintains per-partition paper rankings. Every completed
// match triggers a full deterministic recompute of its partition from the
// accumulated match outcomes; incremental updates are deliberately avoided
// so the table can never drift.
type LeaderboardService struct {
	DB       *gorm.DB // nil disables persistence and title lookups (tests)
	notifier PerformanceNotifier

	mu       sync.RWMutex
	outcomes map[partitionKey]map[string]models.Match // matchID → completed match
	rankings map[partitionKey][]models.RankingEntry
	titles   map[string]string
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{
		DB:       db,
		outcomes: make(map[partitionKey]map[string]models.Match),
		rankings: make(map[partitionKey][]models.RankingEntry),
		titles:   make(map[string]string),
	}
}

// SetNotifier wires the realtime hub. Optional.
func (s *LeaderboardService) SetNotifier(n PerformanceNotifier) {
	s.notifier = n
}

// HandleCompletion is the match completion listener. Completed matches are
// folded into their partition's outcome set (idempotently, keyed by match
// id); failed placeholder matches contribute nothing but still refresh the
// table so subscribers get a consistent performance broadcast.
func (s *LeaderboardService) HandleCompletion(match models.Match) {
	key := partitionKey{match.Category, match.Subcategory, match.Year}

	s.mu.Lock()
	if match.Status == models.MatchStatusCompleted {
		set, ok := s.outcomes[key]
		if !ok {
			set = make(map[string]models.Match)
			s.outcomes[key] = set
		}
		set[match.ID] = match
	}
	entries := s.recomputeLocked(key)
	s.mu.Unlock()

	s.persist(key, entries)
	if s.notifier != nil {
		s.notifier.NotifyPerformance(key.Category, key.Subcategory, key.Year, entries)
	}
}

// recomputeLocked rebuilds the full ranking table for one partition.
// Matches and wins accumulate over a paper's completed matches; a drawn
// comparison counts for matches but for neither paper's wins, and
// single-paper matches never produce a win. Score is the judge's overall
// from the paper's most recent completed match. Callers hold s.mu.
func (s *LeaderboardService) recomputeLocked(key partitionKey) []models.RankingEntry {
	type accum struct {
		matches int
		wins    int
		score   float64
		scoreAt time.Time
		scoreBy string // match id, latest-wins tie break
	}
	papers := make(map[string]*accum)

	track := func(paperID string, m models.Match, score float64) {
		a, ok := papers[paperID]
		if !ok {
			a = &accum{}
			papers[paperID] = a
		}
		a.matches++
		if m.WinnerPaperID != nil && *m.WinnerPaperID == paperID {
			a.wins++
		}
		at := m.UpdatedAt
		if m.CompletedAt != nil {
			at = *m.CompletedAt
		}
		if at.After(a.scoreAt) || (at.Equal(a.scoreAt) && m.ID > a.scoreBy) {
			a.score = score
			a.scoreAt = at
			a.scoreBy = m.ID
		}
	}

	for _, m := range s.outcomes[key] {
		track(m.Paper1ID, m, m.Paper1Score)
		if m.Comparison() {
			track(*m.Paper2ID, m, m.Paper2Score)
		}
	}

	entries := make([]models.RankingEntry, 0, len(papers))
	for paperID, a := range papers {
		winRate := 0.0
		if a.matches > 0 {
			winRate = float64(a.wins) / float64(a.matches)
		}
		entries = append(entries, models.RankingEntry{
			Category:    key.Category,
			Subcategory: key.Subcategory,
			Year:        key.Year,
			PaperID:     paperID,
			PaperTitle:  s.titleLocked(paperID),
			Matches:     a.matches,
			Wins:        a.wins,
			WinRate:     winRate,
			Score:       a.score,
			UpdatedAt:   time.Now().UTC(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].WinRate != entries[j].WinRate {
			return entries[i].WinRate > entries[j].WinRate
		}
		return entries[i].PaperID < entries[j].PaperID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	s.rankings[key] = entries
	return entries
}

func (s *LeaderboardService) titleLocked(paperID string) string {
	if title, ok := s.titles[paperID]; ok {
		return title
	}
	if s.DB == nil {
		return ""
	}
	var paper models.Paper
	if err := s.DB.Select("id", "title").First(&paper, "id = ?", paperID).Error; err != nil {
		return ""
	}
	s.titles[paperID] = paper.Title
	return paper.Title
}

// persist replaces the partition's rows wholesale so the stored table
// always matches one recompute, never a mix of two.
func (s *LeaderboardService) persist(key partitionKey, entries []models.RankingEntry) {
	if s.DB == nil {
		return
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("category = ? AND subcategory = ? AND year = ?",
			key.Category, key.Subcategory, key.Year).Delete(&models.RankingEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		log.Printf("[RANKING] failed to persist rankings for %s/%s/%d: %v",
			key.Category, key.Subcategory, key.Year, err)
	}
}

// Rankings returns the current table for a partition, best paper first.
func (s *LeaderboardService) Rankings(category, subcategory string, year int) []models.RankingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.rankings[partitionKey{category, subcategory, year}]
	out := make([]models.RankingEntry, len(src))
	copy(out, src)
	return out
}

// EntriesFor filters a partition's table down to the given papers, rank
// positions preserved. Feeds the initial websocket snapshot.
func (s *LeaderboardService) EntriesFor(category, subcategory string, year int, paperIDs []string) []models.RankingEntry {
	wanted := make(map[string]bool, len(paperIDs))
	for _, id := range paperIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RankingEntry
	for _, e := range s.rankings[partitionKey{category, subcategory, year}] {
		if wanted[e.PaperID] {
			out = append(out, e)
		}
	}
	return out
}

// Load rehydrates completed-match outcomes from storage and recomputes
// every partition once, so a restart cannot serve a stale table.
func (s *LeaderboardService) Load() error {
	if s.DB == nil {
		return nil
	}
	var matches []models.Match
	if err := s.DB.Where("status = ?", models.MatchStatusCompleted).Find(&matches).Error; err != nil {
		return err
	}

	s.mu.Lock()
	keys := make(map[partitionKey]bool)
	for _, m := range matches {
		key := partitionKey{m.Category, m.Subcategory, m.Year}
		set, ok := s.outcomes[key]
		if !ok {
			set = make(map[string]models.Match)
			s.outcomes[key] = set
		}
		set[m.ID] = m
		keys[key] = true
	}
	recomputed := make(map[partitionKey][]models.RankingEntry, len(keys))
	for key := range keys {
		recomputed[key] = s.recomputeLocked(key)
	}
	s.mu.Unlock()

	for key, entries := range recomputed {
		s.persist(key, entries)
	}
	log.Printf("[RANKING] rebuilt %d ranking partitions from %d completed matches", len(keys), len(matches))
	return nil
}
