package schemadoc

import "regexp"

// enumPattern — запись вида "label [code]".
var enumPattern = regexp.MustCompile(`(.+) \[(.*)\]`)

// EnumValue — разобранный элемент enum.
type EnumValue struct {
	// Label — отображаемое значение
	Label string
	// Code — код онтологии; nil, если запись не содержит "[...]"
	Code *string
}

// ParseEnum разбирает строку элемента enum.
// "Positive [SNOMED:10828004]" → {Positive, SNOMED:10828004}, "Unknown" → {Unknown, nil}.
func ParseEnum(entry string) EnumValue {
	m := enumPattern.FindStringSubmatch(entry)
	if m == nil {
		return EnumValue{Label: entry}
	}
	code := m[2]
	return EnumValue{Label: m[1], Code: &code}
}
