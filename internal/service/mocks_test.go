package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// --- Моки репозиториев ---

// mockFileRepo — мок FileRepository для unit-тестов.
type mockFileRepo struct {
	getFn             func(ctx context.Context, fileID string) (*model.FileRecord, error)
	listByContainerFn func(ctx context.Context, userID string, c model.Container) ([]*model.FileRecord, error)
	keyExistsFn       func(ctx context.Context, key string) (bool, error)
	nextSeqPosFn      func(ctx context.Context, userID string, c model.Container) (int, error)
	appendFn          func(ctx context.Context, userID string, c model.Container, recs []*model.FileRecord) error
	insertFn          func(ctx context.Context, rec *model.FileRecord) error
	removeFn          func(ctx context.Context, fileID string) error
	restoreFn         func(ctx context.Context, rec *model.FileRecord) error
	updateMetadataFn  func(ctx context.Context, updates []model.MetadataUpdate) (int, error)
	reorderFn         func(ctx context.Context, userID string, c model.Container, fileIDs []string) error
	setSlotFn         func(ctx context.Context, fileID, slot string) error
	findBySlotFn      func(ctx context.Context, userID string, c model.Container, slot string) (*model.FileRecord, error)
	replaceFn         func(ctx context.Context, oldFileID string, rec *model.FileRecord) error
}

func (m *mockFileRepo) Get(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, fileID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) ListByContainer(ctx context.Context, userID string, c model.Container) ([]*model.FileRecord, error) {
	if m.listByContainerFn != nil {
		return m.listByContainerFn(ctx, userID, c)
	}
	return nil, nil
}

func (m *mockFileRepo) KeyExists(ctx context.Context, key string) (bool, error) {
	if m.keyExistsFn != nil {
		return m.keyExistsFn(ctx, key)
	}
	return false, nil
}

func (m *mockFileRepo) NextSeqPos(ctx context.Context, userID string, c model.Container) (int, error) {
	if m.nextSeqPosFn != nil {
		return m.nextSeqPosFn(ctx, userID, c)
	}
	return 1, nil
}

func (m *mockFileRepo) Append(ctx context.Context, userID string, c model.Container, recs []*model.FileRecord) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, userID, c, recs)
	}
	return nil
}

func (m *mockFileRepo) Insert(ctx context.Context, rec *model.FileRecord) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, rec)
	}
	return nil
}

func (m *mockFileRepo) Remove(ctx context.Context, fileID string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, fileID)
	}
	return nil
}

func (m *mockFileRepo) Restore(ctx context.Context, rec *model.FileRecord) error {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, rec)
	}
	return nil
}

func (m *mockFileRepo) UpdateMetadata(ctx context.Context, updates []model.MetadataUpdate) (int, error) {
	if m.updateMetadataFn != nil {
		return m.updateMetadataFn(ctx, updates)
	}
	return len(updates), nil
}

func (m *mockFileRepo) Reorder(ctx context.Context, userID string, c model.Container, fileIDs []string) error {
	if m.reorderFn != nil {
		return m.reorderFn(ctx, userID, c, fileIDs)
	}
	return nil
}

func (m *mockFileRepo) SetSlot(ctx context.Context, fileID, slot string) error {
	if m.setSlotFn != nil {
		return m.setSlotFn(ctx, fileID, slot)
	}
	return nil
}

func (m *mockFileRepo) FindBySlot(ctx context.Context, userID string, c model.Container, slot string) (*model.FileRecord, error) {
	if m.findBySlotFn != nil {
		return m.findBySlotFn(ctx, userID, c, slot)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) Replace(ctx context.Context, oldFileID string, rec *model.FileRecord) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, oldFileID, rec)
	}
	return nil
}

// mockProjectRepo — мок ProjectRepository.
type mockProjectRepo struct {
	ensureFn func(ctx context.Context, p *model.Project) error
	getFn    func(ctx context.Context, userID, projectID string) (*model.Project, error)
	listFn   func(ctx context.Context, userID string) ([]*model.Project, error)
	deleteFn func(ctx context.Context, userID, projectID string) ([]string, error)
}

func (m *mockProjectRepo) Ensure(ctx context.Context, p *model.Project) error {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, p)
	}
	return nil
}

func (m *mockProjectRepo) Get(ctx context.Context, userID, projectID string) (*model.Project, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, projectID)
	}
	return &model.Project{UserID: userID, ProjectID: projectID, ProjectTitle: "Проект " + projectID}, nil
}

func (m *mockProjectRepo) List(ctx context.Context, userID string) ([]*model.Project, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProjectRepo) Delete(ctx context.Context, userID, projectID string) ([]string, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, projectID)
	}
	return nil, nil
}

// mockProgramRepo — мок ProgramRepository.
type mockProgramRepo struct {
	ensureFn  func(ctx context.Context, p *model.Program) error
	getFn     func(ctx context.Context, userID, programID string) (*model.Program, error)
	listFn    func(ctx context.Context, userID string) ([]*model.Program, error)
	reorderFn func(ctx context.Context, userID string, programIDs []string) error
	deleteFn  func(ctx context.Context, userID, programID string) ([]string, error)
}

func (m *mockProgramRepo) Ensure(ctx context.Context, p *model.Program) error {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, p)
	}
	return nil
}

func (m *mockProgramRepo) Get(ctx context.Context, userID, programID string) (*model.Program, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, programID)
	}
	return &model.Program{UserID: userID, ProgramID: programID}, nil
}

func (m *mockProgramRepo) List(ctx context.Context, userID string) ([]*model.Program, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProgramRepo) Reorder(ctx context.Context, userID string, programIDs []string) error {
	if m.reorderFn != nil {
		return m.reorderFn(ctx, userID, programIDs)
	}
	return nil
}

func (m *mockProgramRepo) Delete(ctx context.Context, userID, programID string) ([]string, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, programID)
	}
	return nil, nil
}

// mockNoteRepo — мок NoteRepository.
type mockNoteRepo struct {
	addFn    func(ctx context.Context, n *model.Note) error
	deleteFn func(ctx context.Context, fileID, noteID string) error
}

func (m *mockNoteRepo) Add(ctx context.Context, n *model.Note) error {
	if m.addFn != nil {
		return m.addFn(ctx, n)
	}
	n.UniqueID = "note-1"
	return nil
}

func (m *mockNoteRepo) Delete(ctx context.Context, fileID, noteID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, fileID, noteID)
	}
	return nil
}

// --- Моки хранилища и ffmpeg ---

// mockStore — мок blobstore.Store. По умолчанию Fetch пишет
// в dst содержимое "data:{key}".
type mockStore struct {
	presignPutFn func(ctx context.Context, key, contentType string, acl model.AccessType, ttl time.Duration) (string, error)
	presignGetFn func(ctx context.Context, key string, ttl time.Duration) (string, error)
	fetchFn      func(ctx context.Context, key string, ttl time.Duration, dst string) (int64, error)
	putFn        func(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	copyFn       func(ctx context.Context, srcKey, dstKey string, acl model.AccessType) error
	deleteFn     func(ctx context.Context, key string) error
	existsFn     func(ctx context.Context, key string) (bool, error)
}

func (m *mockStore) PresignPut(ctx context.Context, key, contentType string, acl model.AccessType, ttl time.Duration) (string, error) {
	if m.presignPutFn != nil {
		return m.presignPutFn(ctx, key, contentType, acl, ttl)
	}
	return "https://s3.test/put/" + key, nil
}

func (m *mockStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.presignGetFn != nil {
		return m.presignGetFn(ctx, key, ttl)
	}
	return "https://s3.test/get/" + key, nil
}

func (m *mockStore) Fetch(ctx context.Context, key string, ttl time.Duration, dst string) (int64, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, key, ttl, dst)
	}
	data := []byte("data:" + key)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (m *mockStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.putFn != nil {
		return m.putFn(ctx, key, body, size, contentType)
	}
	_, err := io.Copy(io.Discard, body)
	return err
}

func (m *mockStore) Copy(ctx context.Context, srcKey, dstKey string, acl model.AccessType) error {
	if m.copyFn != nil {
		return m.copyFn(ctx, srcKey, dstKey, acl)
	}
	return nil
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return true, nil
}

// memStore — хранилище в памяти: ключ → содержимое. Через mock()
// Exists, Copy, Put и Delete работают с objects, удаления пишутся в deleted.
type memStore struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
}

func newMemStore(objects map[string]string) *memStore {
	m := &memStore{objects: make(map[string]string, len(objects))}
	for k, v := range objects {
		m.objects[k] = v
	}
	return m
}

func (m *memStore) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.objects[key]
	return v, ok
}

func (m *memStore) deletedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *memStore) mock() *mockStore {
	return &mockStore{
		existsFn: func(_ context.Context, key string) (bool, error) {
			_, ok := m.get(key)
			return ok, nil
		},
		copyFn: func(_ context.Context, src, dst string, _ model.AccessType) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			data, ok := m.objects[src]
			if !ok {
				return errors.New("NoSuchKey: " + src)
			}
			m.objects[dst] = data
			return nil
		},
		putFn: func(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
			data, err := io.ReadAll(body)
			if err != nil {
				return err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			m.objects[key] = string(data)
			return nil
		},
		deleteFn: func(_ context.Context, key string) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.deleted = append(m.deleted, key)
			delete(m.objects, key)
			return nil
		},
	}
}

// recordKeys — уникальный индекс file_records.key для моков репозитория.
type recordKeys struct {
	mu   sync.Mutex
	keys map[string]string
}

func newRecordKeys() *recordKeys {
	return &recordKeys{keys: make(map[string]string)}
}

func (r *recordKeys) add(rec *model.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[rec.Key]; ok {
		return repository.ErrConflict
	}
	r.keys[rec.Key] = rec.FileID
	return nil
}

func (r *recordKeys) exists(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[key]
	return ok, nil
}

// mockProber — мок media.Prober.
type mockProber struct {
	probeFn func(ctx context.Context, path string) (*model.MediaMetadata, error)
}

func (m *mockProber) Probe(ctx context.Context, path string) (*model.MediaMetadata, error) {
	if m.probeFn != nil {
		return m.probeFn(ctx, path)
	}
	return &model.MediaMetadata{Duration: "10.5", FrameRate: "25/1", Resolution: "1920x1080"}, nil
}

// mockMerger — мок media.Merger. По умолчанию склеивает входы побайтно.
type mockMerger struct {
	mergeFn func(ctx context.Context, inputs []string, output string) error
}

func (m *mockMerger) Merge(ctx context.Context, inputs []string, output string) error {
	if m.mergeFn != nil {
		return m.mergeFn(ctx, inputs, output)
	}
	var out []byte
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		out = append(out, data...)
	}
	return os.WriteFile(output, out, 0o644)
}

// --- Хелперы ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBatchOptions(t interface{ TempDir() string }) BatchOptions {
	return BatchOptions{WorkDir: t.TempDir(), FetchTTL: time.Minute, Concurrency: 4}
}

func strPtr(s string) *string {
	return &s
}
