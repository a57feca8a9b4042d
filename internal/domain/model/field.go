package model

// FieldKind — вид реестра полей, заполняемого экстракторами классификации.
type FieldKind string

const (
	// FieldKindBioinfo — поля биоинформатического анализа.
	FieldKindBioinfo FieldKind = "bioinfo"
	// FieldKindLineage — поля линий (lineage).
	FieldKindLineage FieldKind = "lineage"
	// FieldKindPublicDatabase — поля публичных баз данных.
	FieldKindPublicDatabase FieldKind = "public_database"
)

// FieldKinds — все виды реестров в порядке работы экстракторов.
var FieldKinds = []FieldKind{FieldKindBioinfo, FieldKindLineage, FieldKindPublicDatabase}

// IsValid проверяет, что вид реестра известен.
func (k FieldKind) IsValid() bool {
	switch k {
	case FieldKindBioinfo, FieldKindLineage, FieldKindPublicDatabase:
		return true
	}
	return false
}

// RegistryField — запись реестра полей (общая для трёх видов).
// Уникальна по property_name внутри своего вида и может ссылаться на несколько схем.
type RegistryField struct {
	// ID — UUID записи
	ID string
	// Kind — вид реестра
	Kind FieldKind
	// PropertyName — ключ свойства
	PropertyName string
	// LabelName — отображаемое имя
	LabelName string
	// DatabaseTypeID — тип публичной БД (только для FieldKindPublicDatabase, может быть nil)
	DatabaseTypeID *string
	// DatabaseType — имя типа публичной БД (заполняется при чтении)
	DatabaseType *string
}

// PublicDatabaseType — тип публичной базы данных (например, gisaid, ena).
// Хранится в таблице public_database_types.
type PublicDatabaseType struct {
	ID   string
	Name string
}
