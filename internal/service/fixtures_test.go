package service

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/klaimedis/engine/internal/domain"
	"github.com/klaimedis/engine/internal/reference"
	"github.com/klaimedis/engine/pkg/external"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestStore builds a small but complete reference store: a pneumonia
// head with subcodes, a leaf diagnosis, one procedure, two drugs, the
// colloquial dictionary and the three mapping tables.
func newTestStore(t *testing.T) *reference.Store {
	t.Helper()

	store, err := reference.NewStore(&reference.Dataset{
		Codes: []domain.CodeEntry{
			{Code: "J18", Name: "Pneumonia, unspecified organism", Category: domain.DomainDiagnosis},
			{Code: "J18.0", Name: "Bronchopneumonia", Category: domain.DomainDiagnosis},
			{Code: "J18.9", Name: "Pneumonia unspecified", Category: domain.DomainDiagnosis},
			{Code: "A09", Name: "Diarrhoea and gastroenteritis", Category: domain.DomainDiagnosis},
			{Code: "93.96", Name: "Oxygen therapy", Category: domain.DomainProcedure},
			{Code: "96.04", Name: "Endotracheal intubation", Category: domain.DomainProcedure},
			{Code: "KFA-001", Name: "Ceftriaxone", Category: domain.DomainDrug},
			{Code: "KFA-002", Name: "Paracetamol", Category: domain.DomainDrug},
		},
		Dictionary: map[domain.DomainTag]map[string]string{
			domain.DomainDiagnosis: {
				"paru2 basah": "Pneumonia unspecified",
				"mencret":     "Diarrhoea and gastroenteritis",
			},
			domain.DomainDrug: {
				"obat penurun panas": "Paracetamol",
			},
		},
		DxTx: map[string][]string{
			"J18.9": {"93.96", "96.04"},
		},
		DxDrug: map[string][]string{
			"J18.9": {"Ceftriaxone", "Paracetamol"},
		},
		TxDrug: map[string][]string{
			"93.96": {"Ceftriaxone"},
		},
		Formulary: []reference.FormularyEntry{
			{DrugID: "Ceftriaxone", Status: domain.FormularyListed},
		},
	}, testLogger())
	require.NoError(t, err)
	return store
}

// fakeProvider is a scriptable Provider for pipeline tests.
type fakeProvider struct {
	normalizeReply *external.NormalizationReply
	normalizeErr   error
	batchReply     *external.BatchReply
	batchErr       error

	normalizeCalls int
	batchCalls     int
	lastBatch      []external.BatchItem
}

func (f *fakeProvider) NormalizeTerm(ctx context.Context, term, domain string) (*external.NormalizationReply, error) {
	f.normalizeCalls++
	return f.normalizeReply, f.normalizeErr
}

func (f *fakeProvider) ClassifyBatch(ctx context.Context, items []external.BatchItem) (*external.BatchReply, error) {
	f.batchCalls++
	f.lastBatch = items
	return f.batchReply, f.batchErr
}
