// Package rules normalizes free-form stop-loss and take-profit thresholds.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

const thresholdField = "threshold"

var numberPattern = regexp.MustCompile(`([+-]?\d*\.?\d+)\s*(%)?`)

// Normalizer converts user-entered thresholds into canonical decimal strings
type Normalizer struct {
	log *logrus.Entry
}

// NewNormalizer creates a normalizer logging through log
func NewNormalizer(log *logrus.Logger) *Normalizer {
	return &Normalizer{log: log.WithField("component", "rules")}
}

// Normalize returns the threshold for category as a "%.6f" string.
// Ratio categories accept "15%" or "0.15"; unknown categories only have their number extracted.
func (n *Normalizer) Normalize(category, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperrors.Validation(thresholdField, fmt.Sprintf("threshold for %q is empty", category))
	}

	match := numberPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return "", apperrors.Validation(thresholdField, fmt.Sprintf("threshold for %q is not a number: %s", category, raw))
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return "", apperrors.Validation(thresholdField, fmt.Sprintf("threshold for %q cannot be parsed: %s", category, raw))
	}

	cat, err := models.ParseRuleCategory(category)
	if err != nil {
		n.log.WithField("category", category).Warn("Unknown rule category, extracting number only")
		return format(value), nil
	}

	isPercent := match[2] != ""
	if cat.IsRatio && isPercent {
		value /= 100.0
	}

	value, err = n.check(cat, value, raw, isPercent)
	if err != nil {
		return "", err
	}
	return format(value), nil
}

// NormalizeItems normalizes every item in place, rejecting unknown categories
func (n *Normalizer) NormalizeItems(items []models.RuleItem) ([]models.RuleItem, error) {
	out := make([]models.RuleItem, 0, len(items))
	for _, item := range items {
		cat, err := models.ParseRuleCategory(item.Category)
		if err != nil {
			return nil, apperrors.Validation("category", fmt.Sprintf("unknown rule category %q", item.Category))
		}
		normalized, err := n.Normalize(cat.Code, item.Threshold)
		if err != nil {
			return nil, err
		}
		out = append(out, models.RuleItem{
			Category:    cat.Code,
			Threshold:   normalized,
			Description: item.Description,
		})
	}
	return out, nil
}

func (n *Normalizer) check(cat models.RuleCategory, value float64, raw string, isPercent bool) (float64, error) {
	switch {
	case cat.Code == models.CategoryBeta.Code:
		if value <= 0 {
			return 0, apperrors.Validation(thresholdField, fmt.Sprintf("threshold for %s must be greater than 0: %s", cat.Code, raw))
		}
		return value, nil

	case cat.AllowNegative:
		if value > 0 {
			n.log.WithFields(logrus.Fields{"category": cat.Code, "input": raw}).Info("Loss limit given as positive value, negating")
			value = -value
		}
		if value < -1.0 {
			return 0, apperrors.Validation(thresholdField, fmt.Sprintf("threshold for %s cannot be below -100%%: %s", cat.Code, raw))
		}
		if value == 0 {
			n.warnZero(cat, raw)
		}
		return value, nil

	case cat.IsRatio:
		if value < 0 {
			return 0, apperrors.Validation(thresholdField, fmt.Sprintf("threshold for %s cannot be negative: %s", cat.Code, raw))
		}
		if value > 1.0 {
			if isPercent {
				return 0, apperrors.Validation(thresholdField, fmt.Sprintf("threshold for %s must not exceed 100%%: %s", cat.Code, raw))
			}
			return 0, apperrors.Validation(thresholdField,
				fmt.Sprintf("threshold for %s must not exceed 1.0; did you mean %s%%?", cat.Code, strings.TrimSpace(raw)))
		}
		if value == 0 {
			n.warnZero(cat, raw)
		}
	}
	return value, nil
}

func (n *Normalizer) warnZero(cat models.RuleCategory, raw string) {
	n.log.WithFields(logrus.Fields{"category": cat.Code, "input": raw}).Warn("Rule threshold is zero and will never trigger")
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
