// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrInvalidDocument — загруженные данные не являются JSON-объектом.
	ErrInvalidDocument = errors.New("некорректный JSON документ схемы")
	// ErrInvalidSchemaStructure — в документе нет обязательных ключей верхнего уровня.
	ErrInvalidSchemaStructure = errors.New("некорректная структура схемы")
	// ErrDuplicateSchema — схема с тем же (name, version, app) уже загружена.
	ErrDuplicateSchema = errors.New("схема уже загружена")
	// ErrUnknownSchemaID — схема с указанным ID не найдена.
	ErrUnknownSchemaID = errors.New("схема с указанным ID не найдена")
	// ErrSchemaNotDefined — в семействе нет схемы по умолчанию.
	ErrSchemaNotDefined = errors.New("схема по умолчанию не определена")
	// ErrNoSelectionMade — в выборе полей формы нет ни одной строки с порядком.
	ErrNoSelectionMade = errors.New("не выбрано ни одного поля")
	// ErrFileNotFound — исходный документ схемы отсутствует в хранилище.
	ErrFileNotFound = errors.New("исходный документ схемы не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrPropertyPersistence — поле не сохранено при загрузке схемы.
	// Только для диагностики: попадает в SkippedField.Reason и логи, из Ingest не возвращается.
	ErrPropertyPersistence = errors.New("ошибка сохранения поля схемы")
)
