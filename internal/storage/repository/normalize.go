package repository

import (
	"strconv"
	"strings"
)

// ParseTiers разбирает строку тарифов из хранилища в канонический срез.
// Исторические выгрузки могли сохранять срез как "[Opcoes, Clube]" —
// квадратные скобки и лишние пробелы отбрасываются.
func ParseTiers(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, " '\"")
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// JoinTiers сериализует срез тарифов в каноническую строку "A,B".
func JoinTiers(tiers []string) string {
	cleaned := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		tier = strings.TrimSpace(tier)
		if tier != "" {
			cleaned = append(cleaned, tier)
		}
	}
	return strings.Join(cleaned, ",")
}

// ParseNotices разбирает строку отправленных напоминаний "30,15" в срез сроков.
// Нечисловые элементы пропускаются.
func ParseNotices(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]int, 0, len(parts))
	for _, part := range parts {
		lead, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		result = append(result, lead)
	}
	return result
}
