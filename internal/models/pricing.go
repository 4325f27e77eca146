package models

// Pricing table names. Three independent rule sets share one lookup
// algorithm: what a reader pays for a chapter, what a reader pays for a
// voice track, and what generating a voice track costs the author.
const (
	TableChapterPrice        = "chapter_price"
	TableVoicePrice          = "voice_price"
	TableVoiceGenerationCost = "voice_generation_cost"
)

// PricingRule maps a size-measure range (word or character count, both ends
// inclusive) to a price in dias. MaxMeasure nil means unbounded above.
type PricingRule struct {
	ID         int64  `json:"id" db:"id"`
	TableName  string `json:"table_name" db:"table_name"`
	MinMeasure int    `json:"min_measure" db:"min_measure"`
	MaxMeasure *int   `json:"max_measure" db:"max_measure"`
	PriceDias  int64  `json:"price_dias" db:"price_dias"`
}
