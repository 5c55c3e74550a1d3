package dedupe

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xhad/docdex/internal/models"
	"github.com/xhad/docdex/internal/types"
)

type DetectorConfig struct {
	Threshold  float64
	Similarity Similarity
}

// Detector finds near-duplicate person/project records by title similarity
// and merges them. Merging is explicit: it runs only when Resolve is called,
// never implicitly at query time.
type Detector struct {
	config   DetectorConfig
	records  types.RecordStore
	embedder types.Embedder
	validate *validator.Validate
}

func NewDetector(records types.RecordStore, embedder types.Embedder, config DetectorConfig) *Detector {
	if config.Threshold <= 0 || config.Threshold > 1 {
		config.Threshold = 0.85
	}
	if config.Similarity == nil {
		config.Similarity = TitleSimilarity
	}

	return &Detector{
		config:   config,
		records:  records,
		embedder: embedder,
		validate: validator.New(),
	}
}

// FindCandidates returns existing records of the same kind whose titles are
// similar enough to rec's to be duplicate candidates.
func (d *Detector) FindCandidates(ctx context.Context, rec models.Record) ([]models.Record, error) {
	existing, err := d.records.RecordsByKind(ctx, rec.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing %s records: %w", rec.Kind, err)
	}

	var candidates []models.Record
	for _, other := range existing {
		if other.ID == rec.ID {
			continue
		}
		if d.config.Similarity(rec.Title, other.Title) >= d.config.Threshold {
			candidates = append(candidates, other)
		}
	}
	return candidates, nil
}

// Merge combines two duplicate records. Scalar fields prefer the
// more-recently-updated record's value unless it is empty; list fields are
// unioned with duplicates removed by normalized equality. The survivor keeps
// the newer record's identity.
func Merge(a, b models.Record) models.Record {
	primary, secondary := a, b
	if secondary.UpdatedAt.After(primary.UpdatedAt) {
		primary, secondary = secondary, primary
	}

	merged := primary
	merged.Payload.Role = pickScalar(primary.Payload.Role, secondary.Payload.Role)
	merged.Payload.Education = pickScalar(primary.Payload.Education, secondary.Payload.Education)
	merged.Payload.Client = pickScalar(primary.Payload.Client, secondary.Payload.Client)
	merged.Payload.Location = pickScalar(primary.Payload.Location, secondary.Payload.Location)
	merged.Payload.Summary = pickScalar(primary.Payload.Summary, secondary.Payload.Summary)
	if merged.Payload.CostUSD == 0 {
		merged.Payload.CostUSD = secondary.Payload.CostUSD
	}
	merged.Payload.Firms = unionLists(primary.Payload.Firms, secondary.Payload.Firms)
	merged.Payload.Projects = unionLists(primary.Payload.Projects, secondary.Payload.Projects)
	merged.Payload.Expertise = unionLists(primary.Payload.Expertise, secondary.Payload.Expertise)
	merged.Key = NormalizeTitle(merged.Title)
	return merged
}

// Resolve validates an incoming record, merges it with every duplicate
// candidate, persists the survivor with a fresh embedding, and removes the
// superseded records.
func (d *Detector) Resolve(ctx context.Context, incoming models.Record) (models.Record, error) {
	if err := d.validate.Struct(incoming); err != nil {
		return models.Record{}, fmt.Errorf("invalid record %q: %w", incoming.Title, err)
	}
	if incoming.ID == uuid.Nil {
		incoming.ID = uuid.New()
	}
	incoming.Key = NormalizeTitle(incoming.Title)

	candidates, err := d.FindCandidates(ctx, incoming)
	if err != nil {
		return models.Record{}, err
	}

	merged := incoming
	for _, candidate := range candidates {
		merged = Merge(merged, candidate)
	}

	embedding, err := d.embedder.Embed(ctx, merged.SummaryText())
	if err != nil {
		return models.Record{}, fmt.Errorf("failed to embed merged record %q: %w", merged.Title, err)
	}
	merged.Embedding = embedding

	if err := d.records.UpsertRecord(ctx, merged); err != nil {
		return models.Record{}, err
	}
	for _, candidate := range candidates {
		if candidate.ID == merged.ID {
			continue
		}
		if err := d.records.DeleteRecord(ctx, candidate.ID.String()); err != nil {
			return models.Record{}, fmt.Errorf("failed to remove superseded record %s: %w", candidate.ID, err)
		}
	}
	// when a newer candidate won, the incoming record itself is superseded
	if merged.ID != incoming.ID {
		if err := d.records.DeleteRecord(ctx, incoming.ID.String()); err != nil {
			return models.Record{}, fmt.Errorf("failed to remove superseded record %s: %w", incoming.ID, err)
		}
	}
	return merged, nil
}

func pickScalar(newer, older string) string {
	if newer != "" {
		return newer
	}
	return older
}

func unionLists(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, item := range list {
			key := NormalizeTitle(item)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	return out
}
