// visualization.go — выбор полей для формы ввода метаданных.
// Сохранение перезаписывает выбор целиком.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
)

// Колонки строки таблицы выбора: [property_name, label_name, order, in_use, fill_mode].
const selectionColumns = 5

// VisualizationService — выбор полей формы метаданных.
type VisualizationService struct {
	store   repository.Store
	schemas *SchemaService
	logger  *slog.Logger
}

// NewVisualizationService создаёт сервис выбора полей.
func NewVisualizationService(store repository.Store, schemas *SchemaService, logger *slog.Logger) *VisualizationService {
	return &VisualizationService{
		store:   store,
		schemas: schemas,
		logger:  logger.With(slog.String("component", "visualization_service")),
	}
}

// SelectionEntry — выбранное поле: метка и порядок.
type SelectionEntry struct {
	Label string
	Order int
}

// Selection — текущий выбор, разделённый по режиму заполнения.
type Selection struct {
	Sample []SelectionEntry
	Batch  []SelectionEntry
}

// SaveSelection заменяет выбор полей строками rows.
// Строки с пустым order пропускаются. Если не сохранено ни одной строки,
// возвращается ErrNoSelectionMade, а прежний выбор остаётся удалённым.
func (v *VisualizationService) SaveSelection(ctx context.Context, schemaID string, rows [][]any) (int, error) {
	schema, err := v.schemas.GetSchema(ctx, schemaID)
	if err != nil {
		return 0, err
	}

	entries := make([]*model.MetadataVisualization, 0, len(rows))
	for i, row := range rows {
		entry, err := parseSelectionRow(row)
		if err != nil {
			return 0, fmt.Errorf("%w: строка %d: %v", ErrValidation, i+1, err)
		}
		if entry == nil {
			continue
		}
		entry.ID = uuid.New().String()
		entry.SchemaID = schema.ID
		entries = append(entries, entry)
	}

	err = v.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		if _, err := repos.Visualizations.DeleteAll(ctx); err != nil {
			return err
		}
		for _, e := range entries {
			if err := repos.Visualizations.Create(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка сохранения выбора полей: %w", err)
	}

	if len(entries) == 0 {
		return 0, ErrNoSelectionMade
	}

	v.logger.Info("Выбор полей формы сохранён",
		slog.String("schema_id", schema.ID),
		slog.Int("fields", len(entries)),
	)
	return len(entries), nil
}

// GetSelection возвращает текущий выбор или nil, если выбор не сохранялся.
func (v *VisualizationService) GetSelection(ctx context.Context) (*Selection, error) {
	items, err := v.store.Repos().Visualizations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выбора полей: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	sel := &Selection{Sample: []SelectionEntry{}, Batch: []SelectionEntry{}}
	for _, item := range items {
		entry := SelectionEntry{Label: item.LabelName, Order: item.Order}
		switch item.FillMode {
		case model.FillModeSample:
			sel.Sample = append(sel.Sample, entry)
		case model.FillModeBatch:
			sel.Batch = append(sel.Batch, entry)
		}
	}
	return sel, nil
}

// parseSelectionRow разбирает строку таблицы; nil — строка без порядка.
func parseSelectionRow(row []any) (*model.MetadataVisualization, error) {
	if len(row) < selectionColumns {
		return nil, fmt.Errorf("ожидается %d колонок, получено %d", selectionColumns, len(row))
	}

	order, ok, err := parseOrder(row[2])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	name, _ := row[0].(string)
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("не указано имя свойства")
	}
	label, _ := row[1].(string)
	fillMode, _ := row[4].(string)

	inUse, err := parseInUse(row[3])
	if err != nil {
		return nil, err
	}

	return &model.MetadataVisualization{
		PropertyName: name,
		LabelName:    label,
		Order:        order,
		InUse:        inUse,
		FillMode:     fillMode,
	}, nil
}

// parseOrder принимает целое число или строку с целым числом.
// Пустая строка и null — порядок не задан.
func parseOrder(v any) (int, bool, error) {
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, fmt.Errorf("некорректный порядок %q", val)
		}
		return n, true, nil
	case json.Number:
		n, err := strconv.Atoi(val.String())
		if err != nil {
			return 0, false, fmt.Errorf("некорректный порядок %s", val)
		}
		return n, true, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, false, fmt.Errorf("порядок должен быть целым: %v", val)
		}
		return int(val), true, nil
	case int:
		return val, true, nil
	}
	return 0, false, fmt.Errorf("некорректный тип порядка %T", v)
}

func parseInUse(v any) (bool, error) {
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return false, fmt.Errorf("некорректное значение in_use %q", val)
		}
		return b, nil
	}
	return false, fmt.Errorf("некорректный тип in_use %T", v)
}
