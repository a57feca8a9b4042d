package schemadoc

import (
	"sort"
	"strings"
)

// Rules — правила отнесения свойств к реестрам полей.
type Rules struct {
	// BioinfoPrefix — префикс classification полей биоинформатики
	BioinfoPrefix string
	// LineageClassification — classification полей линий
	LineageClassification string
	// PublicDatabaseClassification — classification полей публичных БД
	PublicDatabaseClassification string
}

// DefaultRules возвращает правила классификации по умолчанию.
func DefaultRules() Rules {
	return Rules{
		BioinfoPrefix:                "Bioinformatic",
		LineageClassification:        "Lineage fields",
		PublicDatabaseClassification: "Public databases",
	}
}

// IsBioinfo — classification начинается с BioinfoPrefix и нет маркера sample_name.
func (r Rules) IsBioinfo(def PropertyDefinition) bool {
	if def.HasSampleName || def.Classification == "" {
		return false
	}
	return strings.HasPrefix(def.Classification, r.BioinfoPrefix)
}

// IsLineage — classification совпадает с LineageClassification.
func (r Rules) IsLineage(def PropertyDefinition) bool {
	return def.Classification != "" && def.Classification == r.LineageClassification
}

// IsPublicDatabase — classification совпадает с PublicDatabaseClassification.
func (r Rules) IsPublicDatabase(def PropertyDefinition) bool {
	return def.Classification != "" && def.Classification == r.PublicDatabaseClassification
}

// ResolveDatabaseType выбирает тип публичной БД для ключа свойства:
// среди имён, входящих в ключ как подстрока, побеждает самое длинное,
// при равной длине — лексикографически меньшее.
func ResolveDatabaseType(propertyKey string, typeNames []string) (string, bool) {
	candidates := make([]string, 0, len(typeNames))
	for _, name := range typeNames {
		if name != "" && strings.Contains(propertyKey, name) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true
}
