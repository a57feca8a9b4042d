package model

// Режимы заполнения полей формы метаданных.
const (
	FillModeSample = "sample"
	FillModeBatch  = "batch"
)

// MetadataVisualization — выбор поля для формы ввода метаданных.
// Таблица metadata_visualizations перезаписывается целиком при каждом сохранении.
type MetadataVisualization struct {
	ID           string
	SchemaID     string
	PropertyName string
	LabelName    string
	Order        int
	InUse        bool
	FillMode     string
}
