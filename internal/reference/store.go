// Package reference loads the canonical code dataset, the colloquial
// dictionaries and the clinical mapping tables into immutable in-memory
// indexes shared by every request.
package reference

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/klaimedis/engine/internal/domain"
)

// FormularyEntry is one row of the formulary compliance reference.
type FormularyEntry struct {
	DrugID      string
	Status      domain.FormularyStatus
	Restriction string
}

// Dataset is the raw payload produced by a Source before indexing.
type Dataset struct {
	Codes      []domain.CodeEntry
	Dictionary map[domain.DomainTag]map[string]string
	DxTx       map[string][]string
	DxDrug     map[string][]string
	TxDrug     map[string][]string
	Formulary  []FormularyEntry
}

// Store is the immutable in-memory reference index. It is built once at
// startup and shared across all concurrent requests without locking.
type Store struct {
	log *logrus.Logger

	entries   []domain.CodeEntry
	byCode    map[string]int
	byName    map[string]int
	headOrder []string
	headRows  map[string][]int
	headNames map[string]string

	dictionary map[domain.DomainTag]map[string]string
	names      []string

	dxTx   map[string]map[string]struct{}
	dxDrug map[string]map[string]struct{}
	txDrug map[string]map[string]struct{}

	formulary map[string]FormularyEntry
}

// NewStore indexes a loaded dataset. An empty code table is a fatal
// condition: the engine cannot operate without its reference data.
func NewStore(dataset *Dataset, logger *logrus.Logger) (*Store, error) {
	if dataset == nil || len(dataset.Codes) == 0 {
		return nil, fmt.Errorf("building reference store: %w", domain.ErrReferenceLoad)
	}

	s := &Store{
		log:        logger,
		entries:    make([]domain.CodeEntry, 0, len(dataset.Codes)),
		byCode:     make(map[string]int, len(dataset.Codes)),
		byName:     make(map[string]int, len(dataset.Codes)),
		headRows:   make(map[string][]int),
		headNames:  make(map[string]string),
		dictionary: make(map[domain.DomainTag]map[string]string),
		dxTx:       indexMapping(dataset.DxTx, strings.ToUpper),
		dxDrug:     indexMapping(dataset.DxDrug, domain.CanonicalDrugID),
		txDrug:     indexMapping(dataset.TxDrug, domain.CanonicalDrugID),
		formulary:  make(map[string]FormularyEntry, len(dataset.Formulary)),
	}

	codes := make([]domain.CodeEntry, len(dataset.Codes))
	copy(codes, dataset.Codes)
	sort.Slice(codes, func(i, j int) bool { return codes[i].Code < codes[j].Code })

	for _, e := range codes {
		e.Code = strings.ToUpper(strings.TrimSpace(e.Code))
		if e.Code == "" || strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("reference row with empty code or name: %w", domain.ErrReferenceLoad)
		}
		if e.HeadKey == "" {
			e.HeadKey = domain.HeadKeyOf(e.Code)
		}
		if _, dup := s.byCode[e.Code]; dup {
			continue
		}
		idx := len(s.entries)
		s.entries = append(s.entries, e)
		s.byCode[e.Code] = idx

		normName := domain.NormalizeTerm(e.Name)
		if _, taken := s.byName[normName]; !taken {
			s.byName[normName] = idx
			s.names = append(s.names, normName)
		}

		if _, seen := s.headRows[e.HeadKey]; !seen {
			s.headOrder = append(s.headOrder, e.HeadKey)
		}
		s.headRows[e.HeadKey] = append(s.headRows[e.HeadKey], idx)
	}

	// A head's representative name is its own row when the dataset has
	// one, otherwise the first member's name.
	for head, rows := range s.headRows {
		s.headNames[head] = s.entries[rows[0]].Name
		if idx, ok := s.byCode[head]; ok {
			s.headNames[head] = s.entries[idx].Name
		}
	}

	for tag, table := range dataset.Dictionary {
		normalized := make(map[string]string, len(table))
		for colloquial, canonical := range table {
			normalized[domain.NormalizeTerm(colloquial)] = canonical
		}
		s.dictionary[tag] = normalized
	}

	for _, fe := range dataset.Formulary {
		s.formulary[domain.CanonicalDrugID(fe.DrugID)] = fe
	}

	sort.Strings(s.names)

	logger.WithFields(logrus.Fields{
		"codes":      len(s.entries),
		"heads":      len(s.headRows),
		"dx_tx":      len(s.dxTx),
		"dx_drug":    len(s.dxDrug),
		"tx_drug":    len(s.txDrug),
		"formulary":  len(s.formulary),
		"dict_langs": len(s.dictionary),
	}).Info("Reference store loaded")

	return s, nil
}

func indexMapping(raw map[string][]string, canon func(string) string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(raw))
	for key, values := range raw {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[canon(v)] = struct{}{}
		}
		out[strings.ToUpper(strings.TrimSpace(key))] = set
	}
	return out
}

// LookupName finds an entry by exact, case-insensitive canonical name.
func (s *Store) LookupName(name string) (*domain.CodeEntry, bool) {
	idx, ok := s.byName[domain.NormalizeTerm(name)]
	if !ok {
		return nil, false
	}
	e := s.entries[idx]
	return &e, true
}

// LookupCode finds an entry by its code.
func (s *Store) LookupCode(code string) (*domain.CodeEntry, bool) {
	idx, ok := s.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, false
	}
	e := s.entries[idx]
	return &e, true
}

// Translate maps a normalized colloquial term to its canonical name via the
// domain dictionary.
func (s *Store) Translate(tag domain.DomainTag, normalized string) (string, bool) {
	table, ok := s.dictionary[tag]
	if !ok {
		return "", false
	}
	canonical, ok := table[normalized]
	return canonical, ok
}

// DictionaryEntries returns the normalized colloquial-to-canonical table
// for a domain. The returned map is shared and must not be mutated.
func (s *Store) DictionaryEntries(tag domain.DomainTag) map[string]string {
	return s.dictionary[tag]
}

// CanonicalNames returns every normalized canonical name, sorted. The
// returned slice is shared and must not be mutated.
func (s *Store) CanonicalNames() []string {
	return s.names
}

// Entries returns all code entries ordered by code. The returned slice is
// shared and must not be mutated.
func (s *Store) Entries() []domain.CodeEntry {
	return s.entries
}

// HeadKeys returns all head-group keys in code order.
func (s *Store) HeadKeys() []string {
	return s.headOrder
}

// HeadName returns the representative name for a head group.
func (s *Store) HeadName(head string) (string, bool) {
	name, ok := s.headNames[strings.ToUpper(strings.TrimSpace(head))]
	return name, ok
}

// HeadMembers returns the subcode entries of a head group ordered by code,
// excluding the head's own row. An empty result means the head has no
// subcodes and is itself the resolvable unit.
func (s *Store) HeadMembers(head string) []domain.CodeEntry {
	head = strings.ToUpper(strings.TrimSpace(head))
	rows, ok := s.headRows[head]
	if !ok {
		return nil
	}
	members := make([]domain.CodeEntry, 0, len(rows))
	for _, idx := range rows {
		if s.entries[idx].Code == head {
			continue
		}
		members = append(members, s.entries[idx])
	}
	return members
}

// ExpectedProcedures returns the expected procedure set for a diagnosis.
// A missing mapping row reports ok=false and flows into a mismatch result
// downstream; it is never an error.
func (s *Store) ExpectedProcedures(diagnosisCode string) (map[string]struct{}, bool) {
	set, ok := s.dxTx[strings.ToUpper(strings.TrimSpace(diagnosisCode))]
	return set, ok
}

// ExpectedDrugs returns the expected drug set for a diagnosis.
func (s *Store) ExpectedDrugs(diagnosisCode string) (map[string]struct{}, bool) {
	set, ok := s.dxDrug[strings.ToUpper(strings.TrimSpace(diagnosisCode))]
	return set, ok
}

// ExpectedDrugsForProcedure returns the expected drug set for a procedure.
func (s *Store) ExpectedDrugsForProcedure(procedureCode string) (map[string]struct{}, bool) {
	set, ok := s.txDrug[strings.ToUpper(strings.TrimSpace(procedureCode))]
	return set, ok
}

// FormularyLookup returns the local formulary verdict for a drug, when the
// reference carries one. Drugs without a local row need the external
// classification round.
func (s *Store) FormularyLookup(drugID string) (FormularyEntry, bool) {
	fe, ok := s.formulary[domain.CanonicalDrugID(drugID)]
	return fe, ok
}

// CodeCount returns the number of indexed code entries.
func (s *Store) CodeCount() int {
	return len(s.entries)
}
