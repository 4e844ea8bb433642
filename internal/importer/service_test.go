package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
)

// memoryCatalog backs the resolver and the alias port, so aliases written
// by one import are visible to the next.
type memoryCatalog struct {
	materials []catalog.Material
	aliases   []catalog.MaterialAlias
	nextID    int64
}

func (m *memoryCatalog) GetMaterialByNameUnit(_ context.Context, name, unit string) (catalog.Material, error) {
	for _, mat := range m.materials {
		if mat.Active && mat.NameCanonical == name && mat.Unit == unit {
			return mat, nil
		}
	}
	return catalog.Material{}, catalog.ErrNotFound
}

func (m *memoryCatalog) FindByAlias(_ context.Context, aliasName string, customerID *int64) ([]catalog.AliasMatch, error) {
	var out []catalog.AliasMatch
	for _, a := range m.aliases {
		if a.AliasName != aliasName {
			continue
		}
		if a.CustomerID != nil && (customerID == nil || *a.CustomerID != *customerID) {
			continue
		}
		for _, mat := range m.materials {
			if mat.ID == a.MaterialID && mat.Active {
				out = append(out, catalog.AliasMatch{Material: mat, AliasName: a.AliasName})
			}
		}
	}
	return out, nil
}

func (m *memoryCatalog) AddAlias(_ context.Context, materialID, aliasName string, customerID *int64, source catalog.AliasSource) error {
	for _, a := range m.aliases {
		if a.MaterialID == materialID && a.AliasName == aliasName && sameScope(a.CustomerID, customerID) {
			return nil
		}
	}
	m.nextID++
	m.aliases = append(m.aliases, catalog.MaterialAlias{
		ID: m.nextID, MaterialID: materialID, AliasName: aliasName, CustomerID: customerID, Source: source,
	})
	return nil
}

func sameScope(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// memoryPrices records sources and observations appended by imports.
type memoryPrices struct {
	sources []pricing.SourceInput
	prices  []appendedPrice
}

type appendedPrice struct {
	materialID string
	price      float64
	date       time.Time
	sourceID   int64
}

func (m *memoryPrices) CreateSource(_ context.Context, input pricing.SourceInput) (int64, error) {
	m.sources = append(m.sources, input)
	return int64(len(m.sources)), nil
}

func (m *memoryPrices) AppendPrice(_ context.Context, materialID string, price float64, _ string, priceDate time.Time, sourceID int64) (int64, error) {
	m.prices = append(m.prices, appendedPrice{materialID: materialID, price: price, date: priceDate, sourceID: sourceID})
	return int64(len(m.prices)), nil
}

// memoryImportRepo is an in-memory Repository.
type memoryImportRepo struct {
	sessions  map[int64]*ImportSession
	unmatched map[int64]*UnmatchedImport
	nextID    int64
}

func newMemoryImportRepo() *memoryImportRepo {
	return &memoryImportRepo{sessions: map[int64]*ImportSession{}, unmatched: map[int64]*UnmatchedImport{}}
}

func (m *memoryImportRepo) CreateSession(_ context.Context, sourceFile string, customerID, vendorID *int64) (int64, error) {
	m.nextID++
	m.sessions[m.nextID] = &ImportSession{
		ID: m.nextID, SourceFile: sourceFile, CustomerID: customerID, VendorID: vendorID,
		Status: SessionStatusPending, CreatedAt: time.Now(),
	}
	return m.nextID, nil
}

func (m *memoryImportRepo) GetSession(_ context.Context, id int64) (ImportSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return ImportSession{}, ErrNotFound
	}
	return *s, nil
}

func (m *memoryImportRepo) FinishSession(_ context.Context, id int64, status SessionStatus, processed, errorRows int) error {
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.ProcessedRows = processed
	s.ErrorRows = errorRows
	return nil
}

func (m *memoryImportRepo) AddUnmatched(_ context.Context, u UnmatchedImport) (int64, error) {
	m.nextID++
	u.ID = m.nextID
	u.Status = ResolutionPending
	m.unmatched[u.ID] = &u
	return u.ID, nil
}

func (m *memoryImportRepo) GetUnmatched(_ context.Context, id int64) (UnmatchedImport, error) {
	u, ok := m.unmatched[id]
	if !ok {
		return UnmatchedImport{}, ErrNotFound
	}
	return *u, nil
}

func (m *memoryImportRepo) ListUnmatched(_ context.Context, sessionID int64, status ResolutionStatus) ([]UnmatchedImport, error) {
	var out []UnmatchedImport
	for id := int64(1); id <= m.nextID; id++ {
		u, ok := m.unmatched[id]
		if !ok || u.Status != status {
			continue
		}
		if sessionID > 0 && u.SessionID != sessionID {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *memoryImportRepo) SetResolution(_ context.Context, id int64, status ResolutionStatus, materialID *string) error {
	u, ok := m.unmatched[id]
	if !ok || u.Status != ResolutionPending {
		return ErrAlreadyResolved
	}
	u.Status = status
	u.ResolvedMaterialID = materialID
	return nil
}

type fixture struct {
	catalog      *memoryCatalog
	prices       *memoryPrices
	repo         *memoryImportRepo
	orchestrator *Orchestrator
}

func newFixture(materials ...catalog.Material) *fixture {
	store := &memoryCatalog{materials: materials}
	prices := &memoryPrices{}
	repo := newMemoryImportRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(repo, resolve.NewResolver(store), prices, store, logger)
	return &fixture{catalog: store, prices: prices, repo: repo, orchestrator: orch}
}

func cement() catalog.Material {
	return catalog.Material{ID: "6b3cbb71-7f07-4f63-a0a4-5d84a4f1b6ec", NameCanonical: "цемент м500", Unit: "кг", WorkRate: 12.5, Active: true}
}

var headers = []string{"Материал", "Единица измерения", "Цена материала, за единицу"}

func TestImportRowFailureIsolation(t *testing.T) {
	f := newFixture(cement())

	rows := make([][]string, 0, 10)
	for i := 0; i < 10; i++ {
		price := fmt.Sprintf("%d", 100+i)
		if i == 4 {
			price = "договорная"
		}
		rows = append(rows, []string{"Цемент М500", "кг", price})
	}

	summary, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{})
	require.NoError(t, err)
	require.Equal(t, 10, summary.TotalRows)
	require.Equal(t, 9, summary.Processed)
	require.Equal(t, 1, summary.Errors)
	require.Empty(t, summary.Unmatched)
	require.Len(t, f.prices.prices, 9)

	session, err := f.repo.GetSession(context.Background(), summary.SessionID)
	require.NoError(t, err)
	require.Equal(t, SessionStatusCompleted, session.Status)
	require.Equal(t, 9, session.ProcessedRows)
	require.Equal(t, 1, session.ErrorRows)
}

func TestImportCreatesOneInvoiceSourcePerBatch(t *testing.T) {
	f := newFixture(cement())
	customerID := int64(3)

	rows := [][]string{
		{"Цемент М500", "кг", "550"},
		{"Цемент М500", "кг", "560"},
	}
	summary, err := f.orchestrator.ImportRows(context.Background(), "прайс_март.csv", headers, rows, Options{CustomerID: &customerID})
	require.NoError(t, err)

	require.Len(t, f.prices.sources, 1)
	source := f.prices.sources[0]
	require.Equal(t, pricing.SourceTypeInvoice, source.Type)
	require.Equal(t, "Import from прайс_март.csv", source.Name)
	require.Equal(t, customerID, *source.CustomerID)

	for _, p := range f.prices.prices {
		require.Equal(t, summary.SourceID, p.sourceID)
	}
}

func TestImportRegistersAliasWhenSpellingDiffers(t *testing.T) {
	f := newFixture(cement())

	rows := [][]string{{"Товар Цемент М500 упаковка", "кг", "550"}}
	_, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{})
	require.NoError(t, err)

	// "товар цемент м500 упаковка" normalizes to the canonical name, so no
	// alias is needed.
	require.Empty(t, f.catalog.aliases)

	rows = [][]string{{"Портландцемент 500", "кг", "560"}}
	_, err = f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{})
	require.NoError(t, err)
	require.Empty(t, f.catalog.aliases, "unmatched rows register no alias")
}

func TestImportAliasRoundTrip(t *testing.T) {
	f := newFixture(cement())
	f.catalog.aliases = append(f.catalog.aliases, catalog.MaterialAlias{
		ID: 100, MaterialID: cement().ID, AliasName: "портландцемент 500", Source: catalog.AliasSourceManual,
	})
	customerID := int64(7)

	rows := [][]string{{"Портландцемент 500", "шт", "560"}}
	summary, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{CustomerID: &customerID})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)

	// Matched through the global alias; the spelling differs from the
	// canonical name, so a customer-scoped import alias is added once.
	require.Len(t, f.catalog.aliases, 2)
	added := f.catalog.aliases[1]
	require.Equal(t, "портландцемент 500", added.AliasName)
	require.Equal(t, customerID, *added.CustomerID)
	require.Equal(t, catalog.AliasSourceImport, added.Source)

	_, err = f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{CustomerID: &customerID})
	require.NoError(t, err)
	require.Len(t, f.catalog.aliases, 2)
}

func TestImportUnmatchedGoesToQueue(t *testing.T) {
	f := newFixture(cement())

	rows := [][]string{
		{"Цемент М500", "кг", "550"},
		{"Кирпич красный", "шт", "25"},
	}
	summary, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 0, summary.Errors)
	require.Len(t, summary.Unmatched, 1)
	require.Equal(t, "Кирпич красный", summary.Unmatched[0].Name)

	pending, err := f.orchestrator.PendingUnmatched(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, summary.SessionID, pending[0].SessionID)
	require.Equal(t, "Кирпич красный", pending[0].RawName)
	require.NotNil(t, pending[0].RawPrice)
	require.InDelta(t, 25, *pending[0].RawPrice, 0.001)
}

func TestImportEmptyNameCountsAsError(t *testing.T) {
	f := newFixture(cement())

	rows := [][]string{
		{"", "кг", "550"},
		{"Цемент М500", "кг", "560"},
	}
	summary, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Errors)
}

func TestImportNoNameColumnFailsSession(t *testing.T) {
	f := newFixture(cement())

	_, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv",
		[]string{"Цена", "Ед. изм."}, [][]string{{"550", "кг"}}, Options{})
	require.ErrorIs(t, err, ErrNoNameColumn)

	session, err := f.repo.GetSession(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, SessionStatusFailed, session.Status)
	require.Empty(t, f.prices.sources)
}

func TestImportUsesDocDate(t *testing.T) {
	f := newFixture(cement())
	docDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	rows := [][]string{{"Цемент М500", "кг", "550"}}
	_, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{DocDate: &docDate})
	require.NoError(t, err)
	require.Len(t, f.prices.prices, 1)
	require.True(t, f.prices.prices[0].date.Equal(docDate))
	require.True(t, f.prices.sources[0].DocDate.Equal(docDate))
}

func TestResolveUnmatched(t *testing.T) {
	f := newFixture(cement())
	customerID := int64(7)

	rows := [][]string{{"Портландцемент 500", "кг", "480,50"}}
	summary, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{CustomerID: &customerID})
	require.NoError(t, err)
	require.Len(t, summary.Unmatched, 1)

	pending, err := f.orchestrator.PendingUnmatched(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	err = f.orchestrator.ResolveUnmatched(context.Background(), pending[0].ID, cement().ID)
	require.NoError(t, err)

	row, err := f.repo.GetUnmatched(context.Background(), pending[0].ID)
	require.NoError(t, err)
	require.Equal(t, ResolutionResolved, row.Status)
	require.Equal(t, cement().ID, *row.ResolvedMaterialID)

	// The raw spelling becomes a customer-scoped alias and the raw price a
	// manual observation.
	require.Len(t, f.catalog.aliases, 1)
	require.Equal(t, "портландцемент 500", f.catalog.aliases[0].AliasName)
	require.Equal(t, customerID, *f.catalog.aliases[0].CustomerID)

	require.Len(t, f.prices.sources, 2)
	require.Equal(t, pricing.SourceTypeManual, f.prices.sources[1].Type)
	require.Len(t, f.prices.prices, 1)
	require.InDelta(t, 480.5, f.prices.prices[0].price, 0.001)

	// Pending queue drains and a second resolve is refused.
	pending, err = f.orchestrator.PendingUnmatched(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
	err = f.orchestrator.ResolveUnmatched(context.Background(), row.ID, cement().ID)
	require.ErrorIs(t, err, ErrAlreadyResolved)

	// The next import of the same spelling now matches through the alias.
	summary, err = f.orchestrator.ImportRows(context.Background(), "invoice2.csv", headers, rows, Options{CustomerID: &customerID})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Empty(t, summary.Unmatched)
}

func TestRejectUnmatched(t *testing.T) {
	f := newFixture(cement())

	rows := [][]string{{"Кирпич красный", "шт", "25"}}
	_, err := f.orchestrator.ImportRows(context.Background(), "invoice.csv", headers, rows, Options{})
	require.NoError(t, err)

	pending, err := f.orchestrator.PendingUnmatched(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.orchestrator.RejectUnmatched(context.Background(), pending[0].ID))

	row, err := f.repo.GetUnmatched(context.Background(), pending[0].ID)
	require.NoError(t, err)
	require.Equal(t, ResolutionRejected, row.Status)
	require.Empty(t, f.catalog.aliases)
	require.Len(t, f.prices.sources, 1)
}
