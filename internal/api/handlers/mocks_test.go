package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/service"
)

var errNotMocked = errors.New("метод не замокан")

// --- Моки сервисов ---

type mockUploader struct {
	issueFn    func(ctx context.Context, req service.UploadURLRequest) (*service.UploadURL, error)
	finalizeFn func(ctx context.Context, req service.FinalizeRequest) ([]*model.FileRecord, error)
}

func (m *mockUploader) IssueUploadURL(ctx context.Context, req service.UploadURLRequest) (*service.UploadURL, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, req)
	}
	return nil, errNotMocked
}

func (m *mockUploader) Finalize(ctx context.Context, req service.FinalizeRequest) ([]*model.FileRecord, error) {
	if m.finalizeFn != nil {
		return m.finalizeFn(ctx, req)
	}
	return nil, errNotMocked
}

type mockFiles struct {
	listFn       func(ctx context.Context, userID string, c model.Container) ([]service.FileView, error)
	deleteFn     func(ctx context.Context, userID string, owner model.Container, fileID string) error
	reorderFn    func(ctx context.Context, userID string, c model.Container, fileIDs []string) error
	setSlotFn    func(ctx context.Context, userID string, owner model.Container, fileID, slot string) (*model.FileRecord, error)
	checkSlotFn  func(ctx context.Context, userID string, c model.Container, slot string) (*service.SlotStatus, error)
	addNoteFn    func(ctx context.Context, userID, projectID, fileID, text string) (*model.Note, error)
	deleteNoteFn func(ctx context.Context, userID, projectID, fileID, noteID string) error
}

func (m *mockFiles) List(ctx context.Context, userID string, c model.Container) ([]service.FileView, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, c)
	}
	return nil, errNotMocked
}

func (m *mockFiles) Delete(ctx context.Context, userID string, owner model.Container, fileID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, owner, fileID)
	}
	return errNotMocked
}

func (m *mockFiles) Reorder(ctx context.Context, userID string, c model.Container, fileIDs []string) error {
	if m.reorderFn != nil {
		return m.reorderFn(ctx, userID, c, fileIDs)
	}
	return errNotMocked
}

func (m *mockFiles) SetSlot(ctx context.Context, userID string, owner model.Container, fileID, slot string) (*model.FileRecord, error) {
	if m.setSlotFn != nil {
		return m.setSlotFn(ctx, userID, owner, fileID, slot)
	}
	return nil, errNotMocked
}

func (m *mockFiles) CheckSlot(ctx context.Context, userID string, c model.Container, slot string) (*service.SlotStatus, error) {
	if m.checkSlotFn != nil {
		return m.checkSlotFn(ctx, userID, c, slot)
	}
	return nil, errNotMocked
}

func (m *mockFiles) AddNote(ctx context.Context, userID, projectID, fileID, text string) (*model.Note, error) {
	if m.addNoteFn != nil {
		return m.addNoteFn(ctx, userID, projectID, fileID, text)
	}
	return nil, errNotMocked
}

func (m *mockFiles) DeleteNote(ctx context.Context, userID, projectID, fileID, noteID string) error {
	if m.deleteNoteFn != nil {
		return m.deleteNoteFn(ctx, userID, projectID, fileID, noteID)
	}
	return errNotMocked
}

type mockExtractor struct {
	extractFn func(ctx context.Context, userID string, c model.Container, fileIDs []string) (*service.ExtractResult, error)
}

func (m *mockExtractor) Extract(ctx context.Context, userID string, c model.Container, fileIDs []string) (*service.ExtractResult, error) {
	if m.extractFn != nil {
		return m.extractFn(ctx, userID, c, fileIDs)
	}
	return nil, errNotMocked
}

type mockTransferer struct {
	transferFn func(ctx context.Context, userID string, items []service.TransferItem) (*service.TransferResult, error)
}

func (m *mockTransferer) Transfer(ctx context.Context, userID string, items []service.TransferItem) (*service.TransferResult, error) {
	if m.transferFn != nil {
		return m.transferFn(ctx, userID, items)
	}
	return nil, errNotMocked
}

type mockRenderer struct {
	renderFn func(ctx context.Context, userID string, projectIDs []string) (*service.RenderResult, error)
}

func (m *mockRenderer) Render(ctx context.Context, userID string, projectIDs []string) (*service.RenderResult, error) {
	if m.renderFn != nil {
		return m.renderFn(ctx, userID, projectIDs)
	}
	return nil, errNotMocked
}

type mockPackager struct {
	packageFn func(ctx context.Context, userID string, projectIDs []string) (*service.PackageResult, error)
}

func (m *mockPackager) Package(ctx context.Context, userID string, projectIDs []string) (*service.PackageResult, error) {
	if m.packageFn != nil {
		return m.packageFn(ctx, userID, projectIDs)
	}
	return nil, errNotMocked
}

type mockProjects struct {
	listFn   func(ctx context.Context, userID string) ([]*model.Project, error)
	deleteFn func(ctx context.Context, userID, projectID string) (*service.DeleteOwnerResult, error)
}

func (m *mockProjects) List(ctx context.Context, userID string) ([]*model.Project, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, errNotMocked
}

func (m *mockProjects) Delete(ctx context.Context, userID, projectID string) (*service.DeleteOwnerResult, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, projectID)
	}
	return nil, errNotMocked
}

type mockPrograms struct {
	createFn  func(ctx context.Context, userID, programID, title string) (*model.Program, error)
	listFn    func(ctx context.Context, userID string) ([]*model.Program, error)
	reorderFn func(ctx context.Context, userID string, programIDs []string) error
	deleteFn  func(ctx context.Context, userID, programID string) (*service.DeleteOwnerResult, error)
	applyFn   func(ctx context.Context, userID, programID string, projectIDs []string) (*service.ApplyResult, error)
}

func (m *mockPrograms) Create(ctx context.Context, userID, programID, title string) (*model.Program, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, programID, title)
	}
	return nil, errNotMocked
}

func (m *mockPrograms) List(ctx context.Context, userID string) ([]*model.Program, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, errNotMocked
}

func (m *mockPrograms) Reorder(ctx context.Context, userID string, programIDs []string) error {
	if m.reorderFn != nil {
		return m.reorderFn(ctx, userID, programIDs)
	}
	return errNotMocked
}

func (m *mockPrograms) Delete(ctx context.Context, userID, programID string) (*service.DeleteOwnerResult, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, programID)
	}
	return nil, errNotMocked
}

func (m *mockPrograms) Apply(ctx context.Context, userID, programID string, projectIDs []string) (*service.ApplyResult, error) {
	if m.applyFn != nil {
		return m.applyFn(ctx, userID, programID, projectIDs)
	}
	return nil, errNotMocked
}

type mockChecker struct {
	err error
}

func (m mockChecker) Ready(context.Context) error {
	return m.err
}

// --- Помощники ---

type testDeps struct {
	uploads   *mockUploader
	files     *mockFiles
	extract   *mockExtractor
	transfers *mockTransferer
	renders   *mockRenderer
	packages  *mockPackager
	projects  *mockProjects
	programs  *mockPrograms
}

func newTestDeps() *testDeps {
	return &testDeps{
		uploads:   &mockUploader{},
		files:     &mockFiles{},
		extract:   &mockExtractor{},
		transfers: &mockTransferer{},
		renders:   &mockRenderer{},
		packages:  &mockPackager{},
		projects:  &mockProjects{},
		programs:  &mockPrograms{},
	}
}

// router собирает chi-роутер со всеми маршрутами поверх моков.
func (d *testDeps) router() http.Handler {
	health := NewHealthHandler(
		ReadinessCheck{Name: "postgresql", Checker: mockChecker{}},
		ReadinessCheck{Name: "objectStorage", Checker: mockChecker{}},
	)
	h := NewAPIHandler(health, Services{
		Uploads:   d.uploads,
		Files:     d.files,
		Extract:   d.extract,
		Transfers: d.transfers,
		Renders:   d.renders,
		Packages:  d.packages,
		Projects:  d.projects,
		Programs:  d.programs,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	HandlerFromMux(h, r)
	return r
}

// do выполняет запрос и возвращает recorder.
func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decode разбирает JSON ответа в map.
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("ответ не JSON: %v (%s)", err, rec.Body.String())
	}
	return out
}

// errorCode возвращает error.code из тела ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("в ответе нет error: %s", rec.Body.String())
	}
	code, _ := e["code"].(string)
	return code
}
