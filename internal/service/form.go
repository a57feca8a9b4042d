// form.go — помощники формы ввода метаданных: шаблон порядка полей,
// список полей для выбора и проверка записи метаданных по схеме.
package service

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/schemadoc"
)

// LoadTemplate читает шаблон формы: одна метка поля на строку.
// Пробелы по краям строк отбрасываются, позиция строки — порядок поля.
func LoadTemplate(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия шаблона формы %s: %w", path, err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения шаблона формы %s: %w", path, err)
	}
	return labels, nil
}

// FormService — поля формы метаданных на основе схемы.
type FormService struct {
	schemas  *SchemaService
	template []string
	logger   *slog.Logger
}

// NewFormService создаёт сервис формы. template == nil — шаблон не используется.
func NewFormService(schemas *SchemaService, template []string, logger *slog.Logger) *FormService {
	return &FormService{
		schemas:  schemas,
		template: template,
		logger:   logger.With(slog.String("component", "form_service")),
	}
}

// SelectionRow — строка таблицы выбора полей.
type SelectionRow struct {
	PropertyName string
	Label        string
	// Order — позиция метки в шаблоне; nil, если метки в шаблоне нет
	Order    *int
	InUse    bool
	FillMode string
}

// FormFields — поля схемы для таблицы выбора.
type FormFields struct {
	SchemaID string
	Fields   []SelectionRow
}

// FieldsForSelection возвращает свойства схемы, упорядоченные по метке.
// Поля из шаблона отмечены как используемые и получают порядок из шаблона.
func (f *FormService) FieldsForSelection(ctx context.Context, schemaID string) (*FormFields, error) {
	display, err := f.schemas.GetSchemaDisplay(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	props := make([]*model.SchemaProperty, len(display.Properties))
	copy(props, display.Properties)
	sort.SliceStable(props, func(i, j int) bool { return props[i].Label < props[j].Label })

	position := make(map[string]int, len(f.template))
	for i, label := range f.template {
		if _, seen := position[label]; !seen {
			position[label] = i
		}
	}

	rows := make([]SelectionRow, 0, len(props))
	for _, p := range props {
		row := SelectionRow{PropertyName: p.PropertyName, Label: p.Label, FillMode: p.FillMode}
		if idx, ok := position[p.Label]; ok {
			row.Order = &idx
			row.InUse = true
		}
		rows = append(rows, row)
	}

	return &FormFields{SchemaID: display.Schema.ID, Fields: rows}, nil
}

// RecordIssue — нарушение схемы в записи метаданных.
type RecordIssue struct {
	Property string
	Problem  string
}

// ValidateRecord проверяет запись метаданных по свойствам схемы:
// заполненность обязательных полей, значения из enum, неизвестные ключи.
// Пустой результат — запись корректна.
func (f *FormService) ValidateRecord(ctx context.Context, schemaID string, record map[string]any) ([]RecordIssue, error) {
	display, err := f.schemas.GetSchemaDisplay(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	known := make(map[string]*model.SchemaProperty, len(display.Properties))
	for _, p := range display.Properties {
		known[p.PropertyName] = p
	}

	issues := []RecordIssue{}
	for _, p := range display.Properties {
		value := record[p.PropertyName]
		if isEmptyValue(value) {
			if p.Required {
				issues = append(issues, RecordIssue{Property: p.PropertyName, Problem: "обязательное поле не заполнено"})
			}
			continue
		}
		if p.HasOptions && !matchesOption(p.Options, value) {
			issues = append(issues, RecordIssue{
				Property: p.PropertyName,
				Problem:  fmt.Sprintf("значение %v не входит в список допустимых", value),
			})
		}
	}

	for key := range record {
		if _, ok := known[key]; !ok {
			issues = append(issues, RecordIssue{Property: key, Problem: "поле отсутствует в схеме"})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Property < issues[j].Property })
	return issues, nil
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// matchesOption принимает метку варианта или полную запись "label [code]".
func matchesOption(options []model.PropertyOption, value any) bool {
	text, ok := value.(string)
	if !ok {
		return false
	}
	parsed := schemadoc.ParseEnum(text)
	for _, o := range options {
		if o.EnumValue != parsed.Label && o.EnumValue != text {
			continue
		}
		if parsed.Code == nil || o.OntologyCode == nil || *parsed.Code == *o.OntologyCode {
			return true
		}
	}
	return false
}
