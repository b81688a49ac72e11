package usecase

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

type RecencyTier struct {
	MaxAge time.Duration `yaml:"max_age"`
	Factor float64       `yaml:"factor"`
}

type BoostConfig struct {
	// RecencyTiers must be sorted by ascending MaxAge; content older than the last tier gets StaleFactor.
	RecencyTiers []RecencyTier `yaml:"recency_tiers"`
	StaleFactor  float64       `yaml:"stale_factor"`

	LongContentChars     int     `yaml:"long_content_chars"`
	VeryLongContentChars int     `yaml:"very_long_content_chars"`
	LengthFactor         float64 `yaml:"length_factor"`
	CodeBlockFactor      float64 `yaml:"code_block_factor"`
	TableFactor          float64 `yaml:"table_factor"`
	ThreadStarterFactor  float64 `yaml:"thread_starter_factor"`

	PreferredSourceFactor float64 `yaml:"preferred_source_factor"`
	OtherSourceFactor     float64 `yaml:"other_source_factor"`
}

func DefaultBoostConfig() BoostConfig {
	const day = 24 * time.Hour
	return BoostConfig{
		RecencyTiers: []RecencyTier{
			{MaxAge: 7 * day, Factor: 1.2},
			{MaxAge: 30 * day, Factor: 1.1},
			{MaxAge: 90 * day, Factor: 1.0},
		},
		StaleFactor: 0.9,

		LongContentChars:     500,
		VeryLongContentChars: 1000,
		LengthFactor:         1.1,
		CodeBlockFactor:      1.05,
		TableFactor:          1.05,
		ThreadStarterFactor:  1.1,

		PreferredSourceFactor: 1.2,
		OtherSourceFactor:     0.9,
	}
}

var markdownTablePattern = regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

// MetadataBooster rescales fused scores with recency, content-quality and source-preference
// multipliers, applied in that order.
type MetadataBooster struct {
	cfg BoostConfig
	now func() time.Time
}

func NewMetadataBooster(cfg BoostConfig, now func() time.Time) *MetadataBooster {
	if len(cfg.RecencyTiers) == 0 {
		cfg = DefaultBoostConfig()
	}
	if now == nil {
		now = time.Now
	}
	return &MetadataBooster{cfg: cfg, now: now}
}

type boostOptions struct {
	recency bool
	quality bool
	source  bool
}

func (b *MetadataBooster) Apply(
	results []domain.SearchResult,
	cls domain.QueryClassification,
	opts boostOptions,
) []domain.SearchResult {
	if len(results) == 0 {
		return results
	}
	now := b.now()
	docPref, chatPref := b.sourcePreference(cls)

	out := make([]domain.SearchResult, len(results))
	for i, result := range results {
		factors := domain.BoostFactors{Recency: 1, Quality: 1, SourcePreference: 1}
		if opts.recency {
			factors.Recency = b.recencyFactor(result.Metadata.CreatedAt, now)
		}
		if opts.quality {
			factors.Quality = b.qualityFactor(result)
		}
		if opts.source {
			switch result.Source {
			case domain.SourceDocument:
				factors.SourcePreference = docPref
			case domain.SourceSlack:
				factors.SourcePreference = chatPref
			}
		}
		result.Score = result.Score * factors.Recency * factors.Quality * factors.SourcePreference
		result.Metadata.Boosts = &factors
		out[i] = result
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func (b *MetadataBooster) recencyFactor(createdAt time.Time, now time.Time) float64 {
	if createdAt.IsZero() {
		return 1.0
	}
	age := now.Sub(createdAt)
	for _, tier := range b.cfg.RecencyTiers {
		if age <= tier.MaxAge {
			return tier.Factor
		}
	}
	return b.cfg.StaleFactor
}

func (b *MetadataBooster) qualityFactor(result domain.SearchResult) float64 {
	factor := 1.0
	length := len([]rune(result.Content))
	if length > b.cfg.LongContentChars {
		factor *= b.cfg.LengthFactor
	}
	if length > b.cfg.VeryLongContentChars {
		factor *= b.cfg.LengthFactor
	}
	if strings.Contains(result.Content, "```") {
		factor *= b.cfg.CodeBlockFactor
	}
	if markdownTablePattern.MatchString(result.Content) {
		factor *= b.cfg.TableFactor
	}
	if result.Source == domain.SourceSlack && result.Metadata.IsThreadStarter() {
		factor *= b.cfg.ThreadStarterFactor
	}
	return factor
}

// sourcePreference returns the document and chat multipliers. Implementation and code
// intent wins over discussion and temporal intent.
func (b *MetadataBooster) sourcePreference(cls domain.QueryClassification) (float64, float64) {
	switch {
	case cls.IsImplementationQuestion || cls.IsCodeRelated:
		return b.cfg.PreferredSourceFactor, b.cfg.OtherSourceFactor
	case cls.IsDiscussionQuestion || cls.IsTemporalQuery:
		return b.cfg.OtherSourceFactor, b.cfg.PreferredSourceFactor
	default:
		return 1.0, 1.0
	}
}
