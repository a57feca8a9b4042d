// Пакет errors — ответы с ошибками в едином формате Schema Module:
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError        = "VALIDATION_ERROR"
	CodeInvalidDocument        = "INVALID_DOCUMENT"
	CodeInvalidSchemaStructure = "INVALID_SCHEMA_STRUCTURE"
	CodeNotFound               = "NOT_FOUND"
	CodeSchemaNotDefined       = "SCHEMA_NOT_DEFINED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeDuplicateSchema        = "DUPLICATE_SCHEMA"
	CodeConflict               = "CONFLICT"
	CodeNoSelectionMade        = "NO_SELECTION_MADE"
	CodeInternalError          = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// InvalidDocument — 400 документ не является JSON-объектом.
func InvalidDocument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidDocument, message)
}

// InvalidSchemaStructure — 400 нарушена структура документа схемы.
func InvalidSchemaStructure(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidSchemaStructure, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// SchemaNotDefined — 404 нет схемы по умолчанию.
func SchemaNotDefined(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeSchemaNotDefined, message)
}

// Unauthorized — 401 невалидный токен.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// DuplicateSchema — 409 схема с такими именем, версией и приложением уже загружена.
func DuplicateSchema(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeDuplicateSchema, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// NoSelectionMade — 422 не выбрано ни одного поля.
func NoSelectionMade(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeNoSelectionMade, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
