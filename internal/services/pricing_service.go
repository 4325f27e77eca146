package services

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/diaverse/backend/internal/models"
)

// PricingService resolves tiered prices for the three pricing tables:
// chapter sale price, voice sale price and voice generation cost. Rule sets
// are loaded from the pricing_rules table once per table and cached as
// immutable snapshots; an empty result is never cached so a configuration
// fix is picked up on the next call.
type PricingService struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string][]models.PricingRule
}

func NewPricingService(db *sql.DB) *PricingService {
	return &PricingService{
		db:    db,
		cache: make(map[string][]models.PricingRule),
	}
}

// GetChapterPrice returns the sale price of a chapter with the given
// character count.
func (s *PricingService) GetChapterPrice(charCount int) (int64, error) {
	return s.priceFor(models.TableChapterPrice, charCount)
}

// GetVoicePrice returns the sale price of a generated voice track.
func (s *PricingService) GetVoicePrice(charCount int) (int64, error) {
	return s.priceFor(models.TableVoicePrice, charCount)
}

// GetGenerationCost returns what generating one voice track costs the
// author.
func (s *PricingService) GetGenerationCost(charCount int) (int64, error) {
	return s.priceFor(models.TableVoiceGenerationCost, charCount)
}

func (s *PricingService) priceFor(table string, measure int) (int64, error) {
	if measure <= 0 {
		return 0, ErrInvalidMeasure
	}

	rules, err := s.rulesFor(table)
	if err != nil {
		return 0, err
	}

	return MatchRule(measure, rules)
}

// MatchRule selects the rule whose inclusive [min, max] range contains
// measure. A nil max is unbounded above. When no rule matches, the rule
// with the highest min wins: a measure above every range belongs to the
// top tier.
func MatchRule(measure int, rules []models.PricingRule) (int64, error) {
	if len(rules) == 0 {
		return 0, ErrPricingUnavailable
	}

	var top *models.PricingRule
	for i := range rules {
		r := &rules[i]
		if measure >= r.MinMeasure && (r.MaxMeasure == nil || measure <= *r.MaxMeasure) {
			return r.PriceDias, nil
		}
		if top == nil || r.MinMeasure > top.MinMeasure {
			top = r
		}
	}

	return top.PriceDias, nil
}

func (s *PricingService) rulesFor(table string) ([]models.PricingRule, error) {
	s.mu.RLock()
	rules, ok := s.cache[table]
	s.mu.RUnlock()
	if ok {
		return rules, nil
	}

	rules, err := s.fetchRules(table)
	if err != nil {
		return nil, fmt.Errorf("fetch pricing rules for %s: %w", table, err)
	}

	// Only a non-empty rule set is worth caching; an empty table is a
	// configuration error that may be fixed at runtime.
	if len(rules) > 0 {
		s.mu.Lock()
		s.cache[table] = rules
		s.mu.Unlock()
	} else {
		log.Printf("[PRICING] Empty rule set for table %s", table)
	}

	return rules, nil
}

func (s *PricingService) fetchRules(table string) ([]models.PricingRule, error) {
	rows, err := s.db.Query(`
		SELECT id, table_name, min_measure, max_measure, price_dias
		FROM pricing_rules
		WHERE table_name = $1
		ORDER BY min_measure ASC`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []models.PricingRule{}
	for rows.Next() {
		var r models.PricingRule
		var max sql.NullInt64
		if err := rows.Scan(&r.ID, &r.TableName, &r.MinMeasure, &max, &r.PriceDias); err != nil {
			return nil, err
		}
		if max.Valid {
			m := int(max.Int64)
			r.MaxMeasure = &m
		}
		rules = append(rules, r)
	}

	return rules, rows.Err()
}

// Invalidate discards the cached snapshot for a pricing table so the next
// lookup reloads it. Used by the admin rules-changed hook.
func (s *PricingService) Invalidate(table string) {
	s.mu.Lock()
	delete(s.cache, table)
	s.mu.Unlock()
}
