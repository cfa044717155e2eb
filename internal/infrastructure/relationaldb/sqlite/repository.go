// Package sqlite provides a SQLite implementation of the RelationalDB interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Repository implements ports.RelationalDB using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Persons (profile fields the kinship engine reads)
	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL UNIQUE,
		gender TEXT NOT NULL DEFAULT 'unknown',
		birth_date TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Relationship edges, one row per direction of a mirrored pair
	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		automatic INTEGER NOT NULL DEFAULT 0,
		tentative INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(subject_id, object_id),
		CHECK(subject_id != object_id)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_object ON edges(object_id);
	CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(type);

	-- Consent-gated relationship requests
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		responded_at TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_pending
		ON requests(requester_id, target_id) WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_requests_target ON requests(target_id);

	-- Suggestions
	CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		candidate_id TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_suggestions_owner ON suggestions(owner_id, status);

	-- Audit log (repair deletions and relabels)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		person_id TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_person ON audit_log(person_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

const personColumns = `id, name, normalized_name, gender, birth_date, created_at`

// SavePerson saves or updates a person.
func (r *Repository) SavePerson(ctx context.Context, p *entities.Person) error {
	query := `
		INSERT INTO persons (id, name, normalized_name, gender, birth_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			normalized_name = excluded.normalized_name,
			gender = excluded.gender,
			birth_date = excluded.birth_date
	`
	normalized := p.NormalizedName
	if normalized == "" {
		normalized = entities.NormalizeName(p.Name)
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = timeNow()
	}
	var birth sql.NullTime
	if p.BirthDate != nil {
		birth = sql.NullTime{Time: *p.BirthDate, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		normalized,
		string(entities.GenderOf(p)),
		birth,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("saving person: %w", err)
	}
	return nil
}

// FindPersonByID finds a person by its ID.
func (r *Repository) FindPersonByID(ctx context.Context, id string) (*entities.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE id = ?`
	return r.queryPerson(ctx, query, id)
}

// FindPersonByName finds a person by its normalized name (case-insensitive).
func (r *Repository) FindPersonByName(ctx context.Context, name string) (*entities.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE normalized_name = ?`
	return r.queryPerson(ctx, query, entities.NormalizeName(name))
}

func (r *Repository) queryPerson(ctx context.Context, query string, args ...any) (*entities.Person, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindPersonsByIDs finds multiple persons by their IDs in a single query.
func (r *Repository) FindPersonsByIDs(ctx context.Context, ids []string) ([]*entities.Person, error) {
	if len(ids) == 0 {
		return []*entities.Person{}, nil
	}

	// Build placeholders for IN clause
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT %s FROM persons WHERE id IN (%s)`, personColumns, strings.Join(placeholders, ","))
	return r.queryPersons(ctx, query, len(ids), args...)
}

// ListPersons lists persons ordered by name. A limit of zero lists everyone.
func (r *Repository) ListPersons(ctx context.Context, limit, offset int) ([]*entities.Person, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + personColumns + ` FROM persons ORDER BY name ASC LIMIT ? OFFSET ?`
	return r.queryPersons(ctx, query, 16, limit, offset)
}

func (r *Repository) queryPersons(ctx context.Context, query string, capacity int, args ...any) ([]*entities.Person, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying persons: %w", err)
	}
	defer rows.Close()

	result := make([]*entities.Person, 0, capacity)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(s scanner) (*entities.Person, error) {
	var p entities.Person
	var gender string
	var birth sql.NullTime
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.NormalizedName,
		&gender,
		&birth,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning person: %w", err)
	}
	p.Gender = entities.Gender(gender)
	if birth.Valid {
		b := birth.Time
		p.BirthDate = &b
	}
	return &p, nil
}

const edgeColumns = `id, subject_id, object_id, type, status, automatic, tentative, created_at`

// SaveEdgePair writes both directions of a relationship in one transaction.
// The UNIQUE(subject_id, object_id) constraint makes concurrent writers of the
// same pair collide; the loser gets ErrDuplicateRelation and nothing is written.
func (r *Repository) SaveEdgePair(ctx context.Context, forward, reverse *entities.Relationship) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT OR IGNORE INTO edges (id, subject_id, object_id, type, status, automatic, tentative, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, e := range []*entities.Relationship{forward, reverse} {
		result, err := tx.ExecContext(ctx, query,
			e.ID,
			e.SubjectID,
			e.ObjectID,
			string(e.Type),
			string(e.Status),
			e.Automatic,
			e.Tentative,
			e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting edge: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("inserting edge: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("saving edge %s -> %s: %w", e.SubjectID, e.ObjectID, entities.ErrDuplicateRelation)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing edge pair: %w", err)
	}
	return nil
}

// SaveEdge writes a single direction of a relationship.
func (r *Repository) SaveEdge(ctx context.Context, e *entities.Relationship) error {
	query := `
		INSERT OR IGNORE INTO edges (id, subject_id, object_id, type, status, automatic, tentative, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.SubjectID,
		e.ObjectID,
		string(e.Type),
		string(e.Status),
		e.Automatic,
		e.Tentative,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting edge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting edge: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("saving edge %s -> %s: %w", e.SubjectID, e.ObjectID, entities.ErrDuplicateRelation)
	}
	return nil
}

// FindEdge finds the edge from subject to object.
func (r *Repository) FindEdge(ctx context.Context, subjectID, objectID string) (*entities.Relationship, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE subject_id = ? AND object_id = ?`
	return r.queryEdge(ctx, query, subjectID, objectID)
}

// FindEdgeByID finds an edge by its ID.
func (r *Repository) FindEdgeByID(ctx context.Context, id string) (*entities.Relationship, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE id = ?`
	return r.queryEdge(ctx, query, id)
}

func (r *Repository) queryEdge(ctx context.Context, query string, args ...any) (*entities.Relationship, error) {
	e, err := scanEdge(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindEdgesBySubject lists the edges a person holds, oldest first.
func (r *Repository) FindEdgesBySubject(ctx context.Context, subjectID string) ([]entities.Relationship, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE subject_id = ? ORDER BY created_at ASC, id ASC`
	return r.queryEdges(ctx, query, subjectID)
}

// FindEdgesByObject lists the edges pointing at a person, oldest first.
func (r *Repository) FindEdgesByObject(ctx context.Context, objectID string) ([]entities.Relationship, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE object_id = ? ORDER BY created_at ASC, id ASC`
	return r.queryEdges(ctx, query, objectID)
}

// queryEdges is a helper to execute edge queries.
func (r *Repository) queryEdges(ctx context.Context, query string, args ...any) ([]entities.Relationship, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	edges := make([]entities.Relationship, 0, 8)
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, rows.Err()
}

func scanEdge(s scanner) (*entities.Relationship, error) {
	var e entities.Relationship
	var relType, status string
	err := s.Scan(
		&e.ID,
		&e.SubjectID,
		&e.ObjectID,
		&relType,
		&status,
		&e.Automatic,
		&e.Tentative,
		&e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning edge: %w", err)
	}
	e.Type = entities.RelationType(relType)
	e.Status = entities.EdgeStatus(status)
	return &e, nil
}

// UpdateEdgeType relabels a single edge.
func (r *Repository) UpdateEdgeType(ctx context.Context, id string, code entities.RelationType, tentative bool) error {
	query := `UPDATE edges SET type = ?, tentative = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, string(code), tentative, id)
	if err != nil {
		return fmt.Errorf("updating edge: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", entities.ErrEdgeNotFound, id)
	}
	return nil
}

// DeleteEdgePair deletes both directions between two persons.
func (r *Repository) DeleteEdgePair(ctx context.Context, aID, bID string) error {
	query := `
		DELETE FROM edges
		WHERE (subject_id = ? AND object_id = ?) OR (subject_id = ? AND object_id = ?)
	`
	if _, err := r.db.ExecContext(ctx, query, aID, bID, bID, aID); err != nil {
		return fmt.Errorf("deleting edge pair: %w", err)
	}
	return nil
}

// CountEdges returns the total number of edges.
func (r *Repository) CountEdges(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM edges`
	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting edges: %w", err)
	}
	return count, nil
}

const requestColumns = `id, requester_id, target_id, type, status, created_at, responded_at`

// CreateRequest inserts a new pending request. The partial unique index on
// pending rows rejects a second pending request for the same ordered pair.
func (r *Repository) CreateRequest(ctx context.Context, req *entities.RelationshipRequest) error {
	query := `
		INSERT OR IGNORE INTO requests (id, requester_id, target_id, type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.RequesterID,
		req.TargetID,
		string(req.Type),
		string(req.Status),
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return entities.ErrDuplicateRequest
	}
	return nil
}

// UpdateRequestStatus moves a request from one status to another.
func (r *Repository) UpdateRequestStatus(ctx context.Context, req *entities.RelationshipRequest, from entities.RequestStatus) error {
	query := `UPDATE requests SET status = ?, responded_at = ? WHERE id = ? AND status = ?`
	var responded sql.NullTime
	if req.RespondedAt != nil {
		responded = sql.NullTime{Time: *req.RespondedAt, Valid: true}
	}
	result, err := r.db.ExecContext(ctx, query, string(req.Status), responded, req.ID, string(from))
	if err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return entities.ErrInvalidTransition
	}
	return nil
}

// FindRequestByID finds a request by its ID.
func (r *Repository) FindRequestByID(ctx context.Context, id string) (*entities.RelationshipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`
	return r.queryRequest(ctx, query, id)
}

// FindPendingRequest finds the pending request for an ordered pair.
func (r *Repository) FindPendingRequest(ctx context.Context, requesterID, targetID string) (*entities.RelationshipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE requester_id = ? AND target_id = ? AND status = 'pending'`
	return r.queryRequest(ctx, query, requesterID, targetID)
}

func (r *Repository) queryRequest(ctx context.Context, query string, args ...any) (*entities.RelationshipRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// FindRequestsByPerson lists the requests a person sent or received, oldest first.
func (r *Repository) FindRequestsByPerson(ctx context.Context, personID string, status entities.RequestStatus) ([]entities.RelationshipRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE (requester_id = ? OR target_id = ?) AND (? = '' OR status = ?)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, personID, personID, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	defer rows.Close()

	reqs := make([]entities.RelationshipRequest, 0, 4)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func scanRequest(s scanner) (*entities.RelationshipRequest, error) {
	var req entities.RelationshipRequest
	var relType, status string
	var responded sql.NullTime
	err := s.Scan(
		&req.ID,
		&req.RequesterID,
		&req.TargetID,
		&relType,
		&status,
		&req.CreatedAt,
		&responded,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning request: %w", err)
	}
	req.Type = entities.RelationType(relType)
	req.Status = entities.RequestStatus(status)
	if responded.Valid {
		t := responded.Time
		req.RespondedAt = &t
	}
	return &req, nil
}

const suggestionColumns = `id, owner_id, candidate_id, type, status, reason, score, created_at`

// ReplacePendingSuggestions drops the owner's pending suggestions and stores the
// new set in one transaction. Accepted and dismissed rows are kept.
func (r *Repository) ReplacePendingSuggestions(ctx context.Context, ownerID string, suggestions []entities.Suggestion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM suggestions WHERE owner_id = ? AND status = 'pending'`, ownerID); err != nil {
		return fmt.Errorf("clearing suggestions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO suggestions (id, owner_id, candidate_id, type, status, reason, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range suggestions {
		s := &suggestions[i]
		if _, err := stmt.ExecContext(ctx,
			s.ID,
			ownerID,
			s.CandidateID,
			string(s.Type),
			string(s.Status),
			s.Reason,
			s.Score,
			s.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting suggestion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing suggestions: %w", err)
	}
	return nil
}

// UpdateSuggestionStatus moves a suggestion from one status to another.
func (r *Repository) UpdateSuggestionStatus(ctx context.Context, id string, from, to entities.SuggestionStatus) error {
	query := `UPDATE suggestions SET status = ? WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("updating suggestion: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return entities.ErrInvalidTransition
	}
	return nil
}

// FindSuggestionByID finds a suggestion by its ID.
func (r *Repository) FindSuggestionByID(ctx context.Context, id string) (*entities.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = ?`
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindSuggestionsByOwner lists an owner's suggestions, best first.
func (r *Repository) FindSuggestionsByOwner(ctx context.Context, ownerID string, status entities.SuggestionStatus) ([]entities.Suggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE owner_id = ? AND (? = '' OR status = ?)
		ORDER BY score DESC, candidate_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("querying suggestions: %w", err)
	}
	defer rows.Close()

	sugs := make([]entities.Suggestion, 0, 8)
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		sugs = append(sugs, *s)
	}
	return sugs, rows.Err()
}

func scanSuggestion(sc scanner) (*entities.Suggestion, error) {
	var s entities.Suggestion
	var relType, status string
	err := sc.Scan(
		&s.ID,
		&s.OwnerID,
		&s.CandidateID,
		&relType,
		&status,
		&s.Reason,
		&s.Score,
		&s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning suggestion: %w", err)
	}
	s.Type = entities.RelationType(relType)
	s.Status = entities.SuggestionStatus(status)
	return &s, nil
}

// LogAction logs an action to the audit log.
func (r *Repository) LogAction(ctx context.Context, action string, personID string, details map[string]any) error {
	var detailsJSON sql.NullString
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(data), Valid: true}
	}

	var personIDPtr sql.NullString
	if personID != "" {
		personIDPtr = sql.NullString{String: personID, Valid: true}
	}

	query := `INSERT INTO audit_log (action, person_id, details, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, action, personIDPtr, detailsJSON, timeNow())
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindAuditLog finds audit log entries for a specific person, oldest first.
func (r *Repository) FindAuditLog(ctx context.Context, personID string) ([]entities.AuditEntry, error) {
	query := `
		SELECT id, action, person_id, details, created_at
		FROM audit_log
		WHERE person_id = ?
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, personID)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []entities.AuditEntry
	for rows.Next() {
		var entry entities.AuditEntry
		var person, details sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&person,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		entry.PersonID = person.String

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
