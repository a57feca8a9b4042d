package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/schemadoc"
	"github.com/bigkaa/goartstore/schema-module/internal/lock"
	"github.com/bigkaa/goartstore/schema-module/internal/repository/sqlite"
	"github.com/bigkaa/goartstore/schema-module/internal/service"
	"github.com/bigkaa/goartstore/schema-module/internal/storage/filestore"
)

const testSchema = `{
	"title": "Relecov",
	"version": "1.0",
	"required": ["host_disease"],
	"properties": {
		"host_disease": {
			"label": "Host disease",
			"classification": "Host information",
			"fill_mode": "sample",
			"ontology": "EFO:0000408",
			"enum": ["COVID-19 [SNOMED:840539006]", "Unknown"]
		},
		"lineage_name": {
			"label": "Lineage name",
			"classification": "Lineage fields",
			"fill_mode": "sample"
		},
		"gisaid_accession_id": {
			"label": "GISAID id",
			"classification": "Public databases",
			"fill_mode": "batch"
		}
	}
}`

// stubChecker — ReadinessChecker с фиксированным ответом.
type stubChecker struct {
	status string
}

func (s stubChecker) CheckReady() (string, string) {
	return s.status, "stub"
}

// newTestRouter собирает API поверх SQLite в памяти.
func newTestRouter(t *testing.T, template []string) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("sqlite.Open() ошибка: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	files, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New() ошибка: %v", err)
	}

	schemas := service.NewSchemaService(st, files, lock.NewLocal(), service.NewCacheService(16, time.Minute),
		service.SchemaServiceConfig{
			SchemasFolder: "schemas",
			MaxSchemaSize: 1 << 20,
			IngestTimeout: 10 * time.Second,
			Rules:         schemadoc.DefaultRules(),
		}, logger)

	h := NewAPIHandler(
		NewHealthHandler(DependencyCheck{Name: "sqlite", Checker: st}),
		schemas,
		service.NewFormService(schemas, template, logger),
		service.NewVisualizationService(st, schemas, logger),
		1<<20,
		logger,
	)

	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// uploadRequest формирует multipart-запрос загрузки схемы.
func uploadRequest(t *testing.T, doc, app, isDefault string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "relecov.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(doc))
	if app != "" {
		_ = mw.WriteField("app_name", app)
	}
	if isDefault != "" {
		_ = mw.WriteField("default", isDefault)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schemas", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("ошибка разбора ответа: %v; тело: %s", err, rec.Body.String())
	}
}

// errorCode извлекает code из тела ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

// mustUpload загружает схему и возвращает её ID.
func mustUpload(t *testing.T, h http.Handler, doc string) string {
	t.Helper()
	rec := do(t, h, uploadRequest(t, doc, "relecov", "on"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("загрузка: код %d, тело %s", rec.Code, rec.Body.String())
	}
	var resp ingestResponse
	decode(t, rec, &resp)
	return resp.Schema.ID
}

func TestUploadSchema(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, uploadRequest(t, testSchema, "relecov", "on"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("код = %d, ожидается 201; тело %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponse
	decode(t, rec, &resp)
	if resp.Schema.Name != "Relecov" || !resp.Schema.IsDefault {
		t.Errorf("схема: %+v", resp.Schema)
	}
	if resp.Schema.Owner != "anonymous" {
		t.Errorf("Owner = %q, ожидается anonymous", resp.Schema.Owner)
	}
	if resp.Properties != 3 || resp.Options != 2 || resp.LineageFields != 1 || resp.PublicDatabaseFields != 1 {
		t.Errorf("итог загрузки: %+v", resp)
	}
	if resp.Skipped == nil || len(resp.Skipped) != 0 {
		t.Errorf("Skipped = %v, ожидается пустой массив", resp.Skipped)
	}
}

func TestUploadSchema_Errors(t *testing.T) {
	h := newTestRouter(t, nil)
	mustUpload(t, h, testSchema)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{"не JSON", uploadRequest(t, "{oops", "relecov", ""), http.StatusBadRequest, "INVALID_DOCUMENT"},
		{"нет ключа", uploadRequest(t, `{"title": "T", "version": "1", "properties": {}}`, "relecov", ""),
			http.StatusBadRequest, "INVALID_SCHEMA_STRUCTURE"},
		{"дубликат", uploadRequest(t, testSchema, "relecov", ""), http.StatusConflict, "DUPLICATE_SCHEMA"},
		{"нет приложения", uploadRequest(t, testSchema, "", ""), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"не multipart", httptest.NewRequest(http.MethodPost, "/api/v1/schemas", strings.NewReader("x")),
			http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.req)
			if rec.Code != tt.wantCode {
				t.Fatalf("код = %d, ожидается %d; тело %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantErr {
				t.Errorf("code = %s, ожидается %s", code, tt.wantErr)
			}
		})
	}
}

func TestGetSchema(t *testing.T) {
	h := newTestRouter(t, nil)
	id := mustUpload(t, h, testSchema)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидается 200", rec.Code)
	}

	var resp schemaDisplayResponse
	decode(t, rec, &resp)
	if len(resp.Properties) != 3 {
		t.Fatalf("свойств: %d, ожидается 3", len(resp.Properties))
	}
	if resp.Properties[0].PropertyName != "gisaid_accession_id" {
		t.Errorf("первое свойство = %s, ожидается gisaid_accession_id", resp.Properties[0].PropertyName)
	}
	if len(resp.Properties[1].Options) != 2 {
		t.Errorf("варианты host_disease: %+v", resp.Properties[1].Options)
	}
}

func TestGetSchema_NotFound(t *testing.T) {
	h := newTestRouter(t, nil)

	for _, path := range []string{
		"/api/v1/schemas/not-a-uuid",
		"/api/v1/schemas/3f1c2a4e-8b6d-4c1e-9f0a-1b2c3d4e5f60/file",
		"/api/v1/schemas/3f1c2a4e-8b6d-4c1e-9f0a-1b2c3d4e5f60/property-map",
	} {
		rec := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: код = %d, ожидается 404", path, rec.Code)
		}
	}
}

func TestListAndDefault(t *testing.T) {
	h := newTestRouter(t, nil)
	id := mustUpload(t, h, testSchema)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas?app_name=relecov", nil))
	var list struct {
		Items []schemaResponse `json:"items"`
		Total int              `json:"total"`
	}
	decode(t, rec, &list)
	if list.Total != 1 || list.Items[0].ID != id {
		t.Errorf("список: %+v", list)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/default?schema_name=Relecov&app_name=relecov", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидается 200", rec.Code)
	}
	var def schemaResponse
	decode(t, rec, &def)
	if def.ID != id {
		t.Errorf("схема по умолчанию = %s, ожидается %s", def.ID, id)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/default", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("без параметров: код = %d, ожидается 200", rec.Code)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/default?schema_name=Other&app_name=relecov", nil))
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "SCHEMA_NOT_DEFINED" {
		t.Errorf("неизвестное семейство: код = %d", rec.Code)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/default?schema_name=Relecov", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("только schema_name: код = %d, ожидается 400", rec.Code)
	}
}

func TestPromoteDefault(t *testing.T) {
	h := newTestRouter(t, nil)
	mustUpload(t, h, testSchema)

	rec := do(t, h, uploadRequest(t, strings.Replace(testSchema, `"1.0"`, `"2.0"`, 1), "relecov", ""))
	var v2 ingestResponse
	decode(t, rec, &v2)

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/schemas/"+v2.Schema.ID+"/default", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидается 200", rec.Code)
	}
	var promoted schemaResponse
	decode(t, rec, &promoted)
	if !promoted.IsDefault || promoted.Version != "2.0" {
		t.Errorf("назначенная схема: %+v", promoted)
	}
}

func TestGetSchemaFile(t *testing.T) {
	h := newTestRouter(t, nil)
	id := mustUpload(t, h, testSchema)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/"+id+"/file", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидается 200", rec.Code)
	}
	if rec.Body.String() != testSchema {
		t.Error("тело ответа не совпадает с загруженным документом")
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "Relecov_v1.0.json") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestPropertyMapAndFields(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/public-database-types",
		strings.NewReader(`{"name": "gisaid"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("создание типа: код = %d", rec.Code)
	}
	id := mustUpload(t, h, testSchema)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/"+id+"/property-map", nil))
	var m map[string]propertyInfoResponse
	decode(t, rec, &m)
	if m["host_disease"].Ontology != "EFO:0000408" {
		t.Errorf("карта свойств: %+v", m)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/"+id+"/fields/public-databases", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидается 200", rec.Code)
	}
	var fields struct {
		Kind  string          `json:"kind"`
		Items []fieldResponse `json:"items"`
	}
	decode(t, rec, &fields)
	if fields.Kind != "public_database" || len(fields.Items) != 1 {
		t.Fatalf("поля: %+v", fields)
	}
	if fields.Items[0].DatabaseType == nil || *fields.Items[0].DatabaseType != "gisaid" {
		t.Errorf("тип БД: %v", fields.Items[0].DatabaseType)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/"+id+"/fields/unknown", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("неизвестный вид: код = %d, ожидается 400", rec.Code)
	}
}

func TestDatabaseTypes(t *testing.T) {
	h := newTestRouter(t, nil)

	for _, name := range []string{"ena", "gisaid"} {
		rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/public-database-types",
			strings.NewReader(`{"name": "`+name+`"}`)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("создание %s: код = %d", name, rec.Code)
		}
	}

	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/public-database-types",
		strings.NewReader(`{"name": "ena"}`)))
	if rec.Code != http.StatusConflict {
		t.Errorf("повтор: код = %d, ожидается 409", rec.Code)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/public-database-types",
		strings.NewReader(`{"name": "  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("пустое имя: код = %d, ожидается 400", rec.Code)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/public-database-types", nil))
	var list struct {
		Items []databaseTypeResponse `json:"items"`
	}
	decode(t, rec, &list)
	if len(list.Items) != 2 || list.Items[0].Name != "ena" {
		t.Errorf("типы: %+v", list.Items)
	}
}

func TestFormFields(t *testing.T) {
	h := newTestRouter(t, []string{"Lineage name", "Host disease"})
	id := mustUpload(t, h, testSchema)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/schemas/"+id+"/form-fields", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидается 200", rec.Code)
	}
	var resp struct {
		SchemaID string  `json:"schema_id"`
		Fields   [][]any `json:"fields"`
	}
	decode(t, rec, &resp)
	if len(resp.Fields) != 3 {
		t.Fatalf("строк: %d, ожидается 3", len(resp.Fields))
	}

	// Порядок по метке: GISAID id, Host disease, Lineage name
	first, second, third := resp.Fields[0], resp.Fields[1], resp.Fields[2]
	if first[0] != "gisaid_accession_id" || first[2] != "" || first[3] != false {
		t.Errorf("первая строка: %v", first)
	}
	if second[0] != "host_disease" || second[2] != float64(1) || second[3] != true {
		t.Errorf("вторая строка: %v", second)
	}
	if third[0] != "lineage_name" || third[2] != float64(0) {
		t.Errorf("третья строка: %v", third)
	}
}

func TestValidateRecord(t *testing.T) {
	h := newTestRouter(t, nil)
	id := mustUpload(t, h, testSchema)

	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/schemas/"+id+"/validate",
		strings.NewReader(`{"host_disease": "Flu", "extra": 1}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("код = %d, ожидается 200", rec.Code)
	}
	var resp validateResponse
	decode(t, rec, &resp)
	if resp.Valid || len(resp.Issues) != 2 {
		t.Errorf("результат проверки: %+v", resp)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/schemas/"+id+"/validate",
		strings.NewReader(`{"host_disease": "Unknown"}`)))
	decode(t, rec, &resp)
	if !resp.Valid || resp.Issues == nil {
		t.Errorf("корректная запись: %+v", resp)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/schemas/"+id+"/validate",
		strings.NewReader(`[1]`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("не объект: код = %d, ожидается 400", rec.Code)
	}
}

func TestVisualization(t *testing.T) {
	h := newTestRouter(t, nil)
	id := mustUpload(t, h, testSchema)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/metadata-visualization", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("пустой выбор: код = %d, ожидается 204", rec.Code)
	}

	body := `{"schema_id": "` + id + `", "rows": [
		["host_disease", "Host disease", "2", true, "sample"],
		["lineage_name", "Lineage name", 1, "true", "sample"],
		["gisaid_accession_id", "GISAID id", "", false, "batch"]
	]}`
	rec = do(t, h, httptest.NewRequest(http.MethodPut, "/api/v1/metadata-visualization", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("сохранение: код = %d; тело %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/metadata-visualization", nil))
	var sel struct {
		Sample [][]any `json:"sample"`
		Batch  [][]any `json:"batch"`
	}
	decode(t, rec, &sel)
	if len(sel.Sample) != 2 || sel.Sample[0][0] != "Lineage name" || len(sel.Batch) != 0 {
		t.Errorf("выбор: %+v", sel)
	}

	empty := `{"schema_id": "` + id + `", "rows": [["host_disease", "Host disease", "", true, "sample"]]}`
	rec = do(t, h, httptest.NewRequest(http.MethodPut, "/api/v1/metadata-visualization", strings.NewReader(empty)))
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "NO_SELECTION_MADE" {
		t.Errorf("пустой выбор: код = %d", rec.Code)
	}

	bad := `{"schema_id": "` + id + `", "rows": [["host_disease", "Host disease", "x", true, "sample"]]}`
	rec = do(t, h, httptest.NewRequest(http.MethodPut, "/api/v1/metadata-visualization", strings.NewReader(bad)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный порядок: код = %d, ожидается 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live: код = %d", rec.Code)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: код = %d; тело %s", rec.Code, rec.Body.String())
	}
	var resp healthReadyResponse
	decode(t, rec, &resp)
	if resp.Service != "schema-module" || resp.Checks["sqlite"].Status != "ok" {
		t.Errorf("ready: %+v", resp)
	}
}

func TestHealthReady_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		checks []DependencyCheck
		code   int
		status string
	}{
		{"все ok", []DependencyCheck{{"db", stubChecker{"ok"}}, {"s3", stubChecker{"ok"}}}, http.StatusOK, "ok"},
		{"degraded", []DependencyCheck{{"db", stubChecker{"ok"}}, {"jwks", stubChecker{"degraded"}}}, http.StatusOK, "degraded"},
		{"fail", []DependencyCheck{{"db", stubChecker{"fail"}}}, http.StatusServiceUnavailable, "fail"},
		{"не инициализирован", []DependencyCheck{{"db", nil}}, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks...).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.code {
				t.Errorf("код = %d, ожидается %d", rec.Code, tt.code)
			}
			var resp healthReadyResponse
			decode(t, rec, &resp)
			if resp.Status != tt.status {
				t.Errorf("статус = %s, ожидается %s", resp.Status, tt.status)
			}
		})
	}
}

func TestIsChecked(t *testing.T) {
	for _, v := range []string{"on", "TRUE", "1", " yes "} {
		if !isChecked(v) {
			t.Errorf("isChecked(%q) = false", v)
		}
	}
	for _, v := range []string{"", "off", "false", "0"} {
		if isChecked(v) {
			t.Errorf("isChecked(%q) = true", v)
		}
	}
}
