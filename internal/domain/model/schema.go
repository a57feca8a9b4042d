package model

import "time"

// Schema — загруженная версия схемы метаданных.
// Хранится в таблице schemas.
// Идентичность: (schema_name, schema_version, app_name), имя и версия без учёта регистра.
type Schema struct {
	// ID — UUID записи
	ID string
	// Name — имя схемы (title документа)
	Name string
	// Version — версия схемы
	Version string
	// AppName — приложение-владелец семейства схем
	AppName string
	// IsDefault — схема по умолчанию в своём семействе (name, app)
	IsDefault bool
	// FileRef — ссылка на сохранённый исходный документ
	FileRef string
	// Owner — пользователь, загрузивший схему
	Owner string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// SchemaProperty — свойство (поле) схемы.
// Хранится в таблице schema_properties, уникально по (schema_id, property_name).
type SchemaProperty struct {
	// ID — UUID записи
	ID string
	// SchemaID — UUID схемы-владельца
	SchemaID string
	// PropertyName — ключ свойства в документе
	PropertyName string
	// Label — отображаемое имя
	Label string
	// Description — описание (может быть пустым)
	Description string
	// Type — JSON-тип свойства из документа
	Type string
	// Classification — группа классификации
	Classification string
	// Ontology — ссылка на онтологию
	Ontology string
	// FillMode — режим заполнения (sample, batch)
	FillMode string
	// Required — ключ присутствует в списке required документа
	Required bool
	// HasOptions — у свойства есть enum
	HasOptions bool
	// Options — варианты значений в порядке enum (заполняется при чтении)
	Options []PropertyOption
}

// PropertyOption — один вариант значения перечислимого свойства.
// Хранится в таблице property_options.
type PropertyOption struct {
	// ID — UUID записи
	ID string
	// PropertyID — UUID свойства
	PropertyID string
	// Position — позиция в исходном enum
	Position int
	// EnumValue — отображаемое значение
	EnumValue string
	// OntologyCode — код онтологии (nil, если в записи его нет)
	OntologyCode *string
}
