package reference

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/klaimedis/engine/internal/domain"
)

// SQLiteSource loads the reference dataset from a local SQLite file. This
// is the default backend: the dataset ships as a single read-only file
// alongside the binary.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens the dataset file.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening reference dataset %s: %w", path, err)
	}
	return &SQLiteSource{db: db}, nil
}

// NewSQLSource wraps an existing database handle. Used by tests and by
// tooling that prepares dataset files.
func NewSQLSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// Close releases the underlying handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Load reads the full dataset. Any failure here is fatal at startup.
func (s *SQLiteSource) Load(ctx context.Context) (*Dataset, error) {
	dataset := &Dataset{
		Dictionary: make(map[domain.DomainTag]map[string]string),
		DxTx:       make(map[string][]string),
		DxDrug:     make(map[string][]string),
		TxDrug:     make(map[string][]string),
	}

	if err := s.loadCodes(ctx, dataset); err != nil {
		return nil, fmt.Errorf("loading code entries: %w", err)
	}
	if err := s.loadDictionary(ctx, dataset); err != nil {
		return nil, fmt.Errorf("loading term dictionary: %w", err)
	}
	if err := s.loadMappings(ctx, dataset); err != nil {
		return nil, fmt.Errorf("loading mapping tables: %w", err)
	}
	if err := s.loadFormulary(ctx, dataset); err != nil {
		return nil, fmt.Errorf("loading formulary: %w", err)
	}
	return dataset, nil
}

func (s *SQLiteSource) loadCodes(ctx context.Context, dataset *Dataset) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, head_key, category FROM code_entry ORDER BY code`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.CodeEntry
		var category string
		if err := rows.Scan(&e.Code, &e.Name, &e.HeadKey, &category); err != nil {
			return err
		}
		e.Category = domain.DomainTag(category)
		dataset.Codes = append(dataset.Codes, e)
	}
	return rows.Err()
}

func (s *SQLiteSource) loadDictionary(ctx context.Context, dataset *Dataset) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, colloquial, canonical FROM term_dictionary`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tag, colloquial, canonical string
		if err := rows.Scan(&tag, &colloquial, &canonical); err != nil {
			return err
		}
		table := dataset.Dictionary[domain.DomainTag(tag)]
		if table == nil {
			table = make(map[string]string)
			dataset.Dictionary[domain.DomainTag(tag)] = table
		}
		table[colloquial] = canonical
	}
	return rows.Err()
}

func (s *SQLiteSource) loadMappings(ctx context.Context, dataset *Dataset) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, source_key, expected FROM clinical_mapping`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var kind, key, expected string
		if err := rows.Scan(&kind, &key, &expected); err != nil {
			return err
		}
		switch domain.RelationKind(kind) {
		case domain.RelationDxTx:
			dataset.DxTx[key] = append(dataset.DxTx[key], expected)
		case domain.RelationDxDrug:
			dataset.DxDrug[key] = append(dataset.DxDrug[key], expected)
		case domain.RelationTxDrug:
			dataset.TxDrug[key] = append(dataset.TxDrug[key], expected)
		default:
			return fmt.Errorf("unknown mapping kind %q", kind)
		}
	}
	return rows.Err()
}

func (s *SQLiteSource) loadFormulary(ctx context.Context, dataset *Dataset) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT drug_id, status, restriction FROM formulary`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var fe FormularyEntry
		var status string
		if err := rows.Scan(&fe.DrugID, &status, &fe.Restriction); err != nil {
			return err
		}
		fe.Status = domain.FormularyStatus(status)
		dataset.Formulary = append(dataset.Formulary, fe)
	}
	return rows.Err()
}

// Bootstrap creates the dataset schema on an empty database. Used by the
// ingest tooling that prepares local dataset files.
func Bootstrap(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS code_entry (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		head_key TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS term_dictionary (
		domain TEXT NOT NULL,
		colloquial TEXT NOT NULL,
		canonical TEXT NOT NULL,
		PRIMARY KEY (domain, colloquial)
	);

	CREATE TABLE IF NOT EXISTS clinical_mapping (
		kind TEXT NOT NULL,
		source_key TEXT NOT NULL,
		expected TEXT NOT NULL,
		PRIMARY KEY (kind, source_key, expected)
	);

	CREATE TABLE IF NOT EXISTS formulary (
		drug_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		restriction TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_code_entry_head ON code_entry(head_key);
	CREATE INDEX IF NOT EXISTS idx_mapping_key ON clinical_mapping(kind, source_key);
	`
	_, err := db.Exec(schema)
	return err
}
