// workers/catalog_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"arena-feedback-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemotePaper matches the catalog service's paper payload.
type RemotePaper struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Abstract    string    `json:"abstract"`
	Authors     string    `json:"authors"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Year        int       `json:"year"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RemoteAgent matches the catalog service's agent payload.
type RemoteAgent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type catalogChangesResponse struct {
	Papers []RemotePaper `json:"papers"`
	Agents []RemoteAgent `json:"agents"`
}

// CatalogSyncWorker mirrors papers and review agents from the catalog
// service so match validation and ranking titles resolve locally.
type CatalogSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewCatalogSyncWorker(db *gorm.DB, catalogBaseURL, endpointPath, serviceToken string) *CatalogSyncWorker {
	return &CatalogSyncWorker{
		db:           db,
		interval:     2 * time.Minute,
		baseURL:      catalogBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *CatalogSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Catalog Sync Worker (catalog-service → papers, agents)…")
	go w.run(ctx)
}

func (w *CatalogSyncWorker) run(ctx context.Context) {
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial catalog sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("❌ Catalog sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Catalog Sync Worker stopped")
			return
		}
	}
}

func (w *CatalogSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw(`SELECT GREATEST(
		COALESCE((SELECT MAX(updated_at) FROM papers WHERE deleted_at IS NULL), 'epoch'::timestamptz),
		COALESCE((SELECT MAX(updated_at) FROM agents WHERE deleted_at IS NULL), 'epoch'::timestamptz)
	)`).Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

func (w *CatalogSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid catalog service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to catalog service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("catalog service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response catalogChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if len(response.Papers) == 0 && len(response.Agents) == 0 {
		return nil
	}

	paperCols := clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "abstract", "authors", "url", "category", "subcategory", "year", "updated_at",
		}),
	}
	for _, rp := range response.Papers {
		paper := models.Paper{
			ID:          rp.ID,
			Title:       rp.Title,
			Abstract:    rp.Abstract,
			Authors:     rp.Authors,
			URL:         rp.URL,
			Category:    rp.Category,
			Subcategory: rp.Subcategory,
			Year:        rp.Year,
			CreatedAt:   rp.CreatedAt,
			UpdatedAt:   rp.UpdatedAt,
		}
		if err := w.db.Clauses(paperCols).Create(&paper).Error; err != nil {
			log.Printf("[SYNC] ⚠️ Failed to upsert paper %s: %v", rp.ID, err)
		}
	}

	agentCols := clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "model", "provider", "description", "is_active", "updated_at",
		}),
	}
	for _, ra := range response.Agents {
		agent := models.Agent{
			ID:          ra.ID,
			Name:        ra.Name,
			Model:       ra.Model,
			Provider:    ra.Provider,
			Description: ra.Description,
			IsActive:    ra.IsActive,
			CreatedAt:   ra.CreatedAt,
			UpdatedAt:   ra.UpdatedAt,
		}
		if err := w.db.Clauses(agentCols).Create(&agent).Error; err != nil {
			log.Printf("[SYNC] ⚠️ Failed to upsert agent %s: %v", ra.ID, err)
		}
	}

	log.Printf("[SYNC] ✅ Catalog synced: %d papers, %d agents", len(response.Papers), len(response.Agents))
	return nil
}
