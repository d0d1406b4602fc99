package citations

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"daybrief/internal/core"
)

// DefaultMaxAge is how long a cached reference list stays fresh.
const DefaultMaxAge = 30 * 24 * time.Hour

// Freshness is the cache state of a paper's reference list.
type Freshness int

const (
	Absent Freshness = iota // never fetched
	Stale                   // fetched, but older than max age
	Fresh                   // fetched within max age
)

// Store is the SQLite-backed citation cache. It holds paper metadata and the
// directed citation edges (citing -> cited) the analyzer has seen.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens the citation database at dbPath, creating the file and its
// parent directory if needed.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open citation database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize citation database: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	papersTable := `
	CREATE TABLE IF NOT EXISTS papers (
		arxiv_id TEXT PRIMARY KEY,
		title TEXT,
		authors TEXT,
		published DATETIME,
		summary TEXT,
		url TEXT,
		total_citations INTEGER DEFAULT 0,
		last_updated DATETIME
	);`

	citationsTable := `
	CREATE TABLE IF NOT EXISTS citations (
		citing_paper TEXT,
		cited_paper TEXT,
		last_updated DATETIME,
		PRIMARY KEY (citing_paper, cited_paper)
	);`

	statements := []string{
		papersTable,
		citationsTable,
		`CREATE INDEX IF NOT EXISTS idx_citations_cited ON citations (cited_paper);`,
		`CREATE INDEX IF NOT EXISTS idx_papers_updated ON papers (last_updated);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePaper upserts paper metadata with the given update time.
func (s *Store) SavePaper(paper core.PaperInfo, now time.Time) error {
	authors, _ := json.Marshal(paper.Authors)

	query := `
	INSERT OR REPLACE INTO papers
	(arxiv_id, title, authors, published, summary, url, total_citations, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		paper.ArxivID,
		paper.Title,
		string(authors),
		paper.Published,
		paper.Summary,
		paper.URL,
		paper.TotalCitations,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save paper %s: %w", paper.ArxivID, err)
	}
	return nil
}

// Paper loads one paper's metadata. The second return is false when the
// paper is not cached.
func (s *Store) Paper(arxivID string) (core.PaperInfo, bool, error) {
	query := `
	SELECT arxiv_id, title, authors, published, summary, url, total_citations
	FROM papers WHERE arxiv_id = ?`

	var paper core.PaperInfo
	var authors string
	var published sql.NullTime
	err := s.db.QueryRow(query, arxivID).Scan(
		&paper.ArxivID,
		&paper.Title,
		&authors,
		&published,
		&paper.Summary,
		&paper.URL,
		&paper.TotalCitations,
	)
	if err == sql.ErrNoRows {
		return core.PaperInfo{}, false, nil
	}
	if err != nil {
		return core.PaperInfo{}, false, fmt.Errorf("failed to load paper %s: %w", arxivID, err)
	}

	if authors != "" {
		json.Unmarshal([]byte(authors), &paper.Authors)
	}
	if published.Valid {
		paper.Published = published.Time
	}
	return paper, true, nil
}

// SaveReferences replaces the cached reference list for a citing paper inside
// one transaction. An empty list is a valid result and still refreshes the
// paper's cache state.
func (s *Store) SaveReferences(citing string, cited []string, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM citations WHERE citing_paper = ?`, citing); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear references for %s: %w", citing, err)
	}
	for _, id := range cited {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO citations (citing_paper, cited_paper, last_updated) VALUES (?, ?, ?)`,
			citing, id, now,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save reference %s -> %s: %w", citing, id, err)
		}
	}

	// Refresh the citing paper's timestamp so an empty reference list still
	// counts as a successful fetch.
	_, err = tx.Exec(
		`INSERT INTO papers (arxiv_id, title, authors, published, summary, url, total_citations, last_updated)
		 VALUES (?, '', '[]', NULL, '', '', 0, ?)
		 ON CONFLICT(arxiv_id) DO UPDATE SET last_updated = excluded.last_updated`,
		citing, now,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to touch paper %s: %w", citing, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit references for %s: %w", citing, err)
	}
	return nil
}

// References returns the cached cited IDs for a citing paper and whether any
// cache row exists for it.
func (s *Store) References(citing string) ([]string, bool, error) {
	rows, err := s.db.Query(`SELECT cited_paper FROM citations WHERE citing_paper = ? ORDER BY cited_paper`, citing)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load references for %s: %w", citing, err)
	}
	defer rows.Close()

	var cited []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, false, fmt.Errorf("failed to scan reference: %w", err)
		}
		cited = append(cited, id)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read references: %w", err)
	}

	if len(cited) > 0 {
		return cited, true, nil
	}

	// No edges: distinguish "empty reference list" from "never fetched" via
	// the paper's timestamp.
	var updated sql.NullTime
	err = s.db.QueryRow(`SELECT last_updated FROM papers WHERE arxiv_id = ?`, citing).Scan(&updated)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to check paper %s: %w", citing, err)
	}
	return nil, updated.Valid, nil
}

// ReferenceFreshness reports the cache state of a citing paper's reference
// list relative to maxAge. The columns are read directly rather than through
// an aggregate; go-sqlite3 only converts DATETIME values for plain column
// selects.
func (s *Store) ReferenceFreshness(citing string, maxAge time.Duration, now time.Time) (Freshness, error) {
	var paperUpdated sql.NullTime
	err := s.db.QueryRow(`SELECT last_updated FROM papers WHERE arxiv_id = ?`, citing).Scan(&paperUpdated)
	if err != nil && err != sql.ErrNoRows {
		return Absent, fmt.Errorf("failed to check freshness of %s: %w", citing, err)
	}

	var edgeUpdated sql.NullTime
	err = s.db.QueryRow(`
		SELECT last_updated FROM citations WHERE citing_paper = ?
		ORDER BY last_updated DESC LIMIT 1`, citing).Scan(&edgeUpdated)
	if err != nil && err != sql.ErrNoRows {
		return Absent, fmt.Errorf("failed to check freshness of %s: %w", citing, err)
	}

	updated := paperUpdated
	if edgeUpdated.Valid && (!updated.Valid || edgeUpdated.Time.After(updated.Time)) {
		updated = edgeUpdated
	}
	if !updated.Valid {
		return Absent, nil
	}
	if updated.Time.Before(now.Add(-maxAge)) {
		return Stale, nil
	}
	return Fresh, nil
}

// Edge is one directed citation relation.
type Edge struct {
	Citing string
	Cited  string
}

// AllEdges returns every cached citation edge, for from-cache graph rebuilds.
func (s *Store) AllEdges() ([]Edge, error) {
	rows, err := s.db.Query(`SELECT citing_paper, cited_paper FROM citations ORDER BY citing_paper, cited_paper`)
	if err != nil {
		return nil, fmt.Errorf("failed to load citation edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Citing, &e.Cited); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edges: %w", err)
	}
	return edges, nil
}
