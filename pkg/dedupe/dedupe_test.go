package dedupe_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docdex/internal/models"
	"github.com/xhad/docdex/pkg/dedupe"
)

type fakeRecordStore struct {
	records  map[string]models.Record
	upserted []models.Record
	deleted  []string
}

func newFakeRecordStore(records ...models.Record) *fakeRecordStore {
	s := &fakeRecordStore{records: make(map[string]models.Record)}
	for _, rec := range records {
		s.records[rec.ID.String()] = rec
	}
	return s
}

func (s *fakeRecordStore) UpsertRecord(ctx context.Context, rec models.Record) error {
	s.records[rec.ID.String()] = rec
	s.upserted = append(s.upserted, rec)
	return nil
}

func (s *fakeRecordStore) RecordsByKind(ctx context.Context, kind models.RecordKind) ([]models.Record, error) {
	var out []models.Record
	for _, rec := range s.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeRecordStore) DeleteRecord(ctx context.Context, id string) error {
	delete(s.records, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 8), nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) (models.BatchResult, error) {
	return models.BatchResult{Vectors: make([][]float32, len(texts))}, nil
}
func (f *fakeEmbedder) Dimension() int { return 8 }

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t,
		dedupe.NormalizeTitle("Water Treatment Plant, Austin TX"),
		dedupe.NormalizeTitle("water   treatment plant austin tx"))
	assert.Equal(t, "water treatment", dedupe.NormalizeTitle("  Water-Treatment!  "))
	assert.Equal(t, "", dedupe.NormalizeTitle("  ,.!  "))
}

func TestTitleSimilarity(t *testing.T) {
	// punctuation and case variants are near-identical
	got := dedupe.TitleSimilarity("Water Treatment Plant, Austin TX", "water treatment plant austin tx")
	assert.InDelta(t, 1.0, got, 1e-9)

	// reordered tokens still score high via token overlap
	got = dedupe.TitleSimilarity("Austin TX Water Treatment Plant", "Water Treatment Plant Austin TX")
	assert.InDelta(t, 1.0, got, 1e-9)

	// unrelated titles score low
	got = dedupe.TitleSimilarity("Water Treatment Plant", "Downtown Parking Garage")
	assert.Less(t, got, 0.5)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 1.0, dedupe.Levenshtein("same title", "Same Title"))
	assert.Equal(t, 1.0, dedupe.Levenshtein("", ""))
	assert.Equal(t, 0.0, dedupe.Levenshtein("abc", ""))
	assert.Greater(t, dedupe.Levenshtein("reservoir", "reservior"), 0.7)
}

func TestFindCandidates_FlagsTitleVariants(t *testing.T) {
	existing := models.Record{
		ID:        uuid.New(),
		Kind:      models.KindProject,
		Title:     "Water Treatment Plant, Austin TX",
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	store := newFakeRecordStore(existing)
	d := dedupe.NewDetector(store, &fakeEmbedder{}, dedupe.DetectorConfig{})

	incoming := models.Record{
		ID:    uuid.New(),
		Kind:  models.KindProject,
		Title: "water treatment plant austin tx",
	}
	candidates, err := d.FindCandidates(context.Background(), incoming)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, existing.ID, candidates[0].ID)
}

func TestFindCandidates_IgnoresOtherKindsAndDissimilar(t *testing.T) {
	person := models.Record{ID: uuid.New(), Kind: models.KindPerson, Title: "Water Treatment Plant"}
	other := models.Record{ID: uuid.New(), Kind: models.KindProject, Title: "Downtown Parking Garage"}
	store := newFakeRecordStore(person, other)
	d := dedupe.NewDetector(store, &fakeEmbedder{}, dedupe.DetectorConfig{})

	incoming := models.Record{ID: uuid.New(), Kind: models.KindProject, Title: "Water Treatment Plant"}
	candidates, err := d.FindCandidates(context.Background(), incoming)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestMerge_MostRecentNonEmptyWins(t *testing.T) {
	older := models.Record{
		ID:        uuid.New(),
		Kind:      models.KindProject,
		Title:     "Water Treatment Plant, Austin TX",
		UpdatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload: models.RecordPayload{
			Client:   "City of Austin",
			Location: "Austin, TX",
			CostUSD:  12_500_000,
			Firms:    []string{"Acme Engineering"},
		},
	}
	newer := models.Record{
		ID:        uuid.New(),
		Kind:      models.KindProject,
		Title:     "water treatment plant austin tx",
		UpdatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Payload: models.RecordPayload{
			Client: "Austin Water", // non-empty in both: newer wins
			Firms:  []string{"acme engineering", "Hilltop Builders"},
		},
	}

	merged := dedupe.Merge(older, newer)

	assert.Equal(t, newer.ID, merged.ID, "survivor keeps the newer identity")
	assert.Equal(t, "Austin Water", merged.Payload.Client)
	assert.Equal(t, "Austin, TX", merged.Payload.Location, "empty newer field falls back to older")
	assert.Equal(t, 12_500_000.0, merged.Payload.CostUSD)
	// union removes the case variant duplicate
	assert.Len(t, merged.Payload.Firms, 2)
	assert.Equal(t, newer.UpdatedAt, merged.UpdatedAt)
}

func TestMerge_ArgumentOrderIrrelevant(t *testing.T) {
	a := models.Record{ID: uuid.New(), Title: "T", UpdatedAt: time.Now(), Payload: models.RecordPayload{Role: "Lead"}}
	b := models.Record{ID: uuid.New(), Title: "t", UpdatedAt: time.Now().Add(-time.Hour), Payload: models.RecordPayload{Role: "Engineer", Education: "MSc"}}

	ab := dedupe.Merge(a, b)
	ba := dedupe.Merge(b, a)
	assert.Equal(t, ab, ba)
	assert.Equal(t, "Lead", ab.Payload.Role)
	assert.Equal(t, "MSc", ab.Payload.Education)
}

func TestResolve_ExactlyOneSurvivor(t *testing.T) {
	existing := models.Record{
		ID:        uuid.New(),
		Kind:      models.KindProject,
		Title:     "Water Treatment Plant, Austin TX",
		UpdatedAt: time.Now().Add(-time.Hour),
		Payload:   models.RecordPayload{Client: "City of Austin"},
	}
	store := newFakeRecordStore(existing)
	d := dedupe.NewDetector(store, &fakeEmbedder{}, dedupe.DetectorConfig{})

	incoming := models.Record{
		Kind:      models.KindProject,
		Title:     "water treatment plant austin tx",
		UpdatedAt: time.Now(),
		Payload:   models.RecordPayload{Firms: []string{"Acme Engineering"}},
	}
	merged, err := d.Resolve(context.Background(), incoming)
	require.NoError(t, err)

	assert.Len(t, store.records, 1, "exactly one record survives")
	assert.Equal(t, "City of Austin", merged.Payload.Client)
	assert.Equal(t, []string{"Acme Engineering"}, merged.Payload.Firms)
	assert.Len(t, merged.Embedding, 8, "merged payload is re-embedded")
	assert.Contains(t, store.deleted, existing.ID.String())
}

func TestResolve_OlderIncomingIsSuperseded(t *testing.T) {
	existing := models.Record{
		ID:        uuid.New(),
		Kind:      models.KindProject,
		Title:     "Water Treatment Plant, Austin TX",
		UpdatedAt: time.Now(),
		Payload:   models.RecordPayload{Client: "City of Austin"},
	}
	store := newFakeRecordStore(existing)
	d := dedupe.NewDetector(store, &fakeEmbedder{}, dedupe.DetectorConfig{})

	incoming := models.Record{
		ID:        uuid.New(),
		Kind:      models.KindProject,
		Title:     "water treatment plant austin tx",
		UpdatedAt: time.Now().Add(-time.Hour),
		Payload:   models.RecordPayload{Firms: []string{"Acme Engineering"}},
	}
	merged, err := d.Resolve(context.Background(), incoming)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, merged.ID, "the newer stored record keeps its identity")
	assert.Len(t, store.records, 1)
	assert.Contains(t, store.deleted, incoming.ID.String())
	assert.Equal(t, []string{"Acme Engineering"}, merged.Payload.Firms)
}

func TestResolve_RejectsInvalidRecord(t *testing.T) {
	store := newFakeRecordStore()
	d := dedupe.NewDetector(store, &fakeEmbedder{}, dedupe.DetectorConfig{})

	_, err := d.Resolve(context.Background(), models.Record{Kind: models.KindProject})
	assert.Error(t, err, "missing title must be rejected at the boundary")
	assert.Empty(t, store.upserted)
}

func TestResolve_NoCandidatesInsertsFresh(t *testing.T) {
	store := newFakeRecordStore()
	d := dedupe.NewDetector(store, &fakeEmbedder{}, dedupe.DetectorConfig{})

	rec := models.Record{Kind: models.KindPerson, Title: "Jane Smith", UpdatedAt: time.Now()}
	merged, err := d.Resolve(context.Background(), rec)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, merged.ID)
	assert.Equal(t, "jane smith", merged.Key)
	assert.Len(t, store.records, 1)
	assert.Empty(t, store.deleted)
}
