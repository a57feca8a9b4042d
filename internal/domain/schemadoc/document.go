// Пакет schemadoc — разбор JSON Schema документа формы метаданных:
// загрузка, проверка структуры верхнего уровня, декодирование свойств
// в порядке документа, разбор enum и правила классификации.
package schemadoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidDocument — входные данные не являются JSON-объектом.
	ErrInvalidDocument = errors.New("документ не является корректным JSON-объектом")
	// ErrInvalidStructure — нарушена структура верхнего уровня документа схемы.
	ErrInvalidStructure = errors.New("нарушена структура документа схемы")
	// ErrInvalidProperty — некорректное определение отдельного свойства.
	ErrInvalidProperty = errors.New("некорректное определение свойства")
)

// RequiredKeys — ключи верхнего уровня, обязательные для документа схемы.
var RequiredKeys = []string{"title", "version", "properties", "required"}

// Document — типизированное представление документа схемы.
type Document struct {
	// Title — имя схемы
	Title string
	// Version — версия схемы
	Version string
	// Required — ключи обязательных свойств
	Required []string
	// Properties — корректные свойства в порядке документа
	Properties []PropertyDefinition
	// Rejected — свойства, определение которых не удалось разобрать
	Rejected []RejectedProperty
}

// PropertyDefinition — определение одного свойства из секции properties.
type PropertyDefinition struct {
	Key            string
	Label          string
	Description    string
	Type           string
	Classification string
	Ontology       string
	FillMode       string
	// Required — ключ присутствует в списке required документа
	Required bool
	// HasEnum — в определении есть ключ enum
	HasEnum bool
	// Enum — элементы enum как есть (строки и, возможно, значения других типов)
	Enum []any
	// HasSampleName — в определении есть ключ sample_name (исключает свойство из bioinfo)
	HasSampleName bool
}

// RejectedProperty — свойство, отброшенное при декодировании.
type RejectedProperty struct {
	Key string
	Err error
}

// Load разбирает байты документа в нетипизированную структуру ключ-значение.
// Любая ошибка разбора, а также JSON-значение, не являющееся объектом,
// возвращается как ErrInvalidDocument.
func Load(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: ожидается объект", ErrInvalidDocument)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: лишние данные после объекта", ErrInvalidDocument)
	}
	return doc, nil
}

// CheckStructure проверяет наличие всех ключей keys в документе.
// Проверяется только присутствие ключа, тип и значение не важны.
func CheckStructure(doc map[string]any, keys []string) error {
	var missing []string
	for _, key := range keys {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: отсутствуют ключи %s", ErrInvalidStructure, strings.Join(missing, ", "))
	}
	return nil
}

// Decode преобразует документ в Document. Порядок свойств совпадает
// с порядком ключей в секции properties исходного документа.
// Ошибка типа значения верхнего уровня возвращается как ErrInvalidStructure,
// ошибки отдельных свойств попадают в Document.Rejected.
func Decode(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: ожидается объект", ErrInvalidDocument)
	}

	doc := &Document{}
	var err error

	doc.Title, err = identityValue(top["title"])
	if err != nil {
		return nil, fmt.Errorf("%w: title: %v", ErrInvalidStructure, err)
	}
	doc.Version, err = identityValue(top["version"])
	if err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrInvalidStructure, err)
	}

	var required []any
	if err := json.Unmarshal(top["required"], &required); err != nil {
		return nil, fmt.Errorf("%w: required должен быть массивом", ErrInvalidStructure)
	}
	requiredSet := make(map[string]bool, len(required))
	for _, item := range required {
		// Нестроковые элементы required ни с одним ключом не совпадут
		if key, ok := item.(string); ok {
			doc.Required = append(doc.Required, key)
			requiredSet[key] = true
		}
	}

	keys, raws, err := decodeOrderedObject(top["properties"])
	if err != nil {
		return nil, fmt.Errorf("%w: properties: %v", ErrInvalidStructure, err)
	}
	for _, key := range keys {
		def, err := decodeProperty(key, raws[key], requiredSet[key])
		if err != nil {
			doc.Rejected = append(doc.Rejected, RejectedProperty{Key: key, Err: err})
			continue
		}
		doc.Properties = append(doc.Properties, def)
	}

	return doc, nil
}

// identityValue извлекает title/version: строка или число (в исходной записи).
// Пустая строка допустима: проверяется только тип значения.
func identityValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("ключ отсутствует")
	}
	var s string
	switch {
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		s = string(raw)
	default:
		return "", errors.New("ожидается строка")
	}
	return s, nil
}

// decodeOrderedObject разбирает JSON-объект, сохраняя порядок ключей.
// При повторе ключа действует последнее значение, позиция — первая.
func decodeOrderedObject(raw json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("ожидается объект")
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("неожиданный токен %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("значение %q: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

// decodeProperty разбирает определение одного свойства.
// Обязателен только label (строка); enum, если задан, должен быть массивом.
func decodeProperty(key string, raw json.RawMessage, required bool) (PropertyDefinition, error) {
	def := PropertyDefinition{Key: key, Required: required}

	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(raw, &attrs); err != nil || attrs == nil {
		return def, fmt.Errorf("%w: определение не является объектом", ErrInvalidProperty)
	}

	labelRaw, ok := attrs["label"]
	if !ok {
		return def, fmt.Errorf("%w: отсутствует label", ErrInvalidProperty)
	}
	if err := json.Unmarshal(labelRaw, &def.Label); err != nil || bytes.Equal(bytes.TrimSpace(labelRaw), []byte("null")) {
		return def, fmt.Errorf("%w: label должен быть строкой", ErrInvalidProperty)
	}

	def.Description = optionalText(attrs["description"])
	def.Type = optionalText(attrs["type"])
	def.Classification = optionalText(attrs["classification"])
	def.Ontology = optionalText(attrs["ontology"])
	def.FillMode = optionalText(attrs["fill_mode"])
	_, def.HasSampleName = attrs["sample_name"]

	if enumRaw, ok := attrs["enum"]; ok {
		def.HasEnum = true
		if err := json.Unmarshal(enumRaw, &def.Enum); err != nil {
			return def, fmt.Errorf("%w: enum должен быть массивом", ErrInvalidProperty)
		}
	}

	return def, nil
}

// optionalText возвращает строковое значение атрибута; значения других
// типов сохраняются в компактной JSON-записи, null и отсутствие — пустая строка.
func optionalText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
