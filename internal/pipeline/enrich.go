package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/cache"
	"github.com/carpool-pilot/prospect-cli/internal/model"
	"github.com/carpool-pilot/prospect-cli/internal/resilience"
	"github.com/carpool-pilot/prospect-cli/internal/scorer"
	"github.com/carpool-pilot/prospect-cli/pkg/brreg"
)

// ContactEntry is one cached detail lookup. The JSON keys mirror the
// register field names so cache files from earlier tooling keep working.
// An all-empty entry records that the register had nothing for the org.
type ContactEntry struct {
	Website string `json:"hjemmeside"`
	Email   string `json:"epostadresse"`
	Phone   string `json:"telefon"`
	Mobile  string `json:"mobil"`
}

// Empty reports whether the lookup yielded no contact data at all.
func (c ContactEntry) Empty() bool {
	return c.Website == "" && c.Email == "" && c.Phone == "" && c.Mobile == ""
}

// EnrichStage fills filtered entities with contact data from the register
// detail API and computes their potential score.
type EnrichStage struct {
	client  brreg.Client
	store   *cache.File[ContactEntry]
	rules   scorer.Rules
	variant scorer.Variant
	retry   resilience.RetryConfig
}

// EnrichOption adjusts an EnrichStage.
type EnrichOption func(*EnrichStage)

// WithDetailRetry overrides the retry policy for detail lookups.
func WithDetailRetry(cfg resilience.RetryConfig) EnrichOption {
	return func(s *EnrichStage) { s.retry = cfg }
}

// NewEnrichStage wires an enrich stage from its dependencies.
func NewEnrichStage(client brreg.Client, store *cache.File[ContactEntry], rules scorer.Rules, variant scorer.Variant, opts ...EnrichOption) *EnrichStage {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = retryableLookup
	retry.OnRetry = resilience.RetryLogger("brreg", "detail")

	s := &EnrichStage{client: client, store: store, rules: rules, variant: variant, retry: retry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads a filtered CSV, enriches every entity with contact data and a
// potential score, and writes the result to outputPath. Lookup failures
// degrade to empty contact fields; only cancellation aborts the run.
func (s *EnrichStage) Run(ctx context.Context, inputPath, outputPath string) (*model.Summary, error) {
	log := zap.L().With(zap.String("input", inputPath))

	entities, err := ReadEntities(inputPath)
	if err != nil {
		return nil, err
	}
	summary := &model.Summary{Input: len(entities)}
	entities = dedupeByOrg(entities, summary)

	out := make([]model.Entity, 0, len(entities))
	for i := range entities {
		e := entities[i]

		var entry ContactEntry
		if e.OrgNumber != "" {
			entry, err = s.fetchDetails(ctx, e.OrgNumber, summary)
			if err != nil {
				return nil, err
			}
		}
		if entry.Empty() {
			summary.DetailMisses++
		}

		if e.Website == "" {
			e.Website = entry.Website
		}
		if e.Email == "" {
			e.Email = entry.Email
		}
		if e.Phone == "" {
			e.Phone = entry.Phone
		}
		if e.Mobile == "" {
			e.Mobile = entry.Mobile
		}

		e.Website = NormalizeURL(e.Website)
		e.Phone = FormatPhone(e.Phone)
		e.Mobile = FormatPhone(e.Mobile)
		if e.ProffURL == "" && e.OrgNumber != "" {
			e.ProffURL = ProffSearchURL(e.OrgNumber)
		}

		score := scorer.Compute(e, s.rules, s.variant)
		total := score.Total
		e.PotentialScore = &total
		e.SalesNotes = scorer.Notes(e, score)

		if e.Website != "" {
			summary.WithWebsite++
		}
		if e.Email != "" {
			summary.WithEmail++
		}
		if e.HasAnyPhone() {
			summary.WithPhone++
		}
		out = append(out, e)
	}

	summary.Output = len(out)
	if err := WriteEntities(outputPath, out); err != nil {
		return nil, err
	}

	log.Info("enrich complete",
		zap.Int("input", summary.Input),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("detail_calls", summary.DetailCalls),
		zap.Int("detail_cache_hits", summary.DetailCacheHits),
		zap.Int("detail_misses", summary.DetailMisses),
		zap.Int("with_website", summary.WithWebsite),
		zap.Int("with_email", summary.WithEmail),
		zap.Int("with_phone", summary.WithPhone),
		zap.Int("output", summary.Output),
		zap.String("path", outputPath))
	return summary, nil
}

// fetchDetails resolves contact data for one org number, consulting the
// cache first. Main entities are looked up first; when they carry no
// website the sub-unit record is tried as well. Every outcome is cached,
// including lookups that found nothing, so reruns stay offline.
func (s *EnrichStage) fetchDetails(ctx context.Context, orgNumber string, summary *model.Summary) (ContactEntry, error) {
	key := cacheKey(orgNumber)
	if entry, ok := s.store.Get(key); ok {
		summary.DetailCacheHits++
		return entry, nil
	}
	summary.DetailCalls++

	var entry ContactEntry
	detail, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*brreg.Detail, error) {
		return s.client.LookupEntity(ctx, orgNumber)
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return entry, eris.Wrapf(err, "pipeline: detail lookup %s aborted", orgNumber)
	case err != nil:
		zap.L().Warn("detail lookup failed, caching empty",
			zap.String("org_number", orgNumber),
			zap.Error(err))
	case detail.Found:
		entry = ContactEntry{
			Website: detail.Website,
			Email:   detail.Email,
			Phone:   detail.Phone,
			Mobile:  detail.Mobile,
		}
	}

	if err == nil && entry.Website == "" {
		sub, subErr := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*brreg.Detail, error) {
			return s.client.LookupSubEntity(ctx, orgNumber)
		})
		switch {
		case subErr != nil && ctx.Err() != nil:
			return entry, eris.Wrapf(subErr, "pipeline: detail lookup %s aborted", orgNumber)
		case subErr != nil:
			zap.L().Warn("sub-unit lookup failed",
				zap.String("org_number", orgNumber),
				zap.Error(subErr))
		case sub.Found:
			entry.Website = sub.Website
			if entry.Email == "" {
				entry.Email = sub.Email
			}
			if entry.Phone == "" {
				entry.Phone = sub.Phone
			}
			if entry.Mobile == "" {
				entry.Mobile = sub.Mobile
			}
		}
	}

	s.store.Put(key, entry)
	return entry, nil
}

// dedupeByOrg drops repeated org numbers, keeping the first occurrence.
func dedupeByOrg(entities []model.Entity, summary *model.Summary) []model.Entity {
	seen := make(map[string]struct{}, len(entities))
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if e.OrgNumber != "" {
			if _, ok := seen[e.OrgNumber]; ok {
				summary.Duplicates++
				continue
			}
			seen[e.OrgNumber] = struct{}{}
		}
		out = append(out, e)
	}
	return out
}

// cacheKey keeps the key format of earlier cache files.
func cacheKey(orgNumber string) string {
	return "brreg_" + orgNumber
}

func retryableLookup(err error) bool {
	var status *brreg.StatusError
	if errors.As(err, &status) {
		return resilience.IsTransientHTTPStatus(status.Code)
	}
	return resilience.IsTransient(err)
}
