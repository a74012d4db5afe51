package reference

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/domain"
)

// PostgresSource loads the reference dataset from a shared PostgreSQL
// instance. Deployments that keep their reference data centrally managed
// use this backend; the schema is owned by the migrations under
// migrations/.
type PostgresSource struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresSource creates a Postgres-backed dataset source.
func NewPostgresSource(pool *pgxpool.Pool, logger *logrus.Logger) *PostgresSource {
	return &PostgresSource{pool: pool, log: logger}
}

// Load reads the full dataset. Any failure here is fatal at startup.
func (s *PostgresSource) Load(ctx context.Context) (*Dataset, error) {
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

	s.log.WithFields(logrus.Fields{
		"codes":     len(dataset.Codes),
		"formulary": len(dataset.Formulary),
	}).Debug("Reference dataset loaded from PostgreSQL")

	return dataset, nil
}

func (s *PostgresSource) loadCodes(ctx context.Context, dataset *Dataset) error {
	rows, err := s.pool.Query(ctx,
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

func (s *PostgresSource) loadDictionary(ctx context.Context, dataset *Dataset) error {
	rows, err := s.pool.Query(ctx,
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

func (s *PostgresSource) loadMappings(ctx context.Context, dataset *Dataset) error {
	rows, err := s.pool.Query(ctx,
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

func (s *PostgresSource) loadFormulary(ctx context.Context, dataset *Dataset) error {
	rows, err := s.pool.Query(ctx,
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
