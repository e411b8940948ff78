package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

func newTestProgramService(programs *mockProgramRepo, projects *mockProjectRepo, files *mockFileRepo, store *mockStore) *ProgramService {
	return NewProgramService(programs, projects, files, store, NewURLCache(store, 10, time.Minute, time.Hour), 4, testLogger())
}

func TestProgramService_Apply(t *testing.T) {
	program := []*model.FileRecord{
		{FileID: "g-a", SlotPosition: "a", FileName: "jingle.mp4", Key: "users/u1/programming/g1/10-ga-jingle.mp4", Duration: strPtr("3")},
		{FileID: "g-b", SlotPosition: "b", FileName: "ad.mp4", Key: "users/u1/programming/g1/11-gb-ad.mp4"},
		{FileID: "g-none", FileName: "free.mp4", Key: "users/u1/programming/g1/12-gn-free.mp4"},
	}
	playlists := map[string][]*model.FileRecord{
		"p1": {
			{FileID: "p1-1", SeqPos: 1, SlotPosition: "a", Key: "users/u1/projects/p1/playlists/old-a.mp4"},
			{FileID: "p1-2", SeqPos: 2, Key: "users/u1/projects/p1/playlists/plain.mp4"},
			{FileID: "p1-3", SeqPos: 3, SlotPosition: "z", Key: "users/u1/projects/p1/playlists/old-z.mp4"},
		},
		"p2": {
			{FileID: "p2-1", SeqPos: 1, SlotPosition: "b", Key: "users/u1/projects/p2/playlists/old-b.mp4"},
		},
	}

	var mu sync.Mutex
	replaced := map[string]*model.FileRecord{}
	var deleted []string
	files := &mockFileRepo{
		listByContainerFn: func(_ context.Context, _ string, c model.Container) ([]*model.FileRecord, error) {
			if c.Kind == model.KindProgram {
				return program, nil
			}
			return playlists[c.ID], nil
		},
		replaceFn: func(_ context.Context, oldID string, rec *model.FileRecord) error {
			mu.Lock()
			defer mu.Unlock()
			replaced[oldID] = rec
			return nil
		},
	}
	store := &mockStore{
		deleteFn: func(_ context.Context, key string) error {
			mu.Lock()
			defer mu.Unlock()
			deleted = append(deleted, key)
			return nil
		},
	}
	svc := newTestProgramService(&mockProgramRepo{}, &mockProjectRepo{}, files, store)

	res, err := svc.Apply(context.Background(), "u1", "g1", []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("Apply ошибка: %v", err)
	}
	if len(res.Replaced) != 2 || len(res.Errors) != 0 {
		t.Fatalf("результат = %+v", res)
	}

	a := replaced["p1-1"]
	if a == nil || !model.KeyBelongsTo(a.Key, "u1", model.ProjectContainer(model.KindPlaylist, "p1")) ||
		!strings.HasSuffix(a.Key, "-"+a.FileID+"-10-ga-jingle.mp4") || a.FileName != "jingle.mp4" || *a.Duration != "3" {
		t.Errorf("замена слота a = %+v", a)
	}
	if a.FileID == "g-a" || a.FileID == "p1-1" {
		t.Errorf("замена должна получить новый fileId, получен %q", a.FileID)
	}
	if replaced["p2-1"] == nil {
		t.Error("слот b в p2 не заменён")
	}

	sort.Strings(deleted)
	want := []string{"users/u1/projects/p1/playlists/old-a.mp4", "users/u1/projects/p2/playlists/old-b.mp4"}
	if len(deleted) != 2 || deleted[0] != want[0] || deleted[1] != want[1] {
		t.Errorf("удалены %v, ожидалось %v", deleted, want)
	}
}

func TestProgramService_Apply_ReplaceFails(t *testing.T) {
	var deleted []string
	files := &mockFileRepo{
		listByContainerFn: func(_ context.Context, _ string, c model.Container) ([]*model.FileRecord, error) {
			if c.Kind == model.KindProgram {
				return []*model.FileRecord{{FileID: "g", SlotPosition: "a", Key: "users/u1/programming/g1/new.mp4"}}, nil
			}
			return []*model.FileRecord{{FileID: "old", SlotPosition: "a", Key: "users/u1/projects/p1/playlists/old.mp4"}}, nil
		},
		replaceFn: func(context.Context, string, *model.FileRecord) error {
			return repository.ErrNotFound
		},
	}
	store := &mockStore{
		deleteFn: func(_ context.Context, key string) error {
			deleted = append(deleted, key)
			return nil
		},
	}
	svc := newTestProgramService(&mockProgramRepo{}, &mockProjectRepo{}, files, store)
	svc.concurrency = 1

	res, err := svc.Apply(context.Background(), "u1", "g1", []string{"p1"})
	if err != nil {
		t.Fatalf("Apply ошибка: %v", err)
	}
	if len(res.Replaced) != 0 || len(res.Errors) != 1 || res.Errors[0].ID != "p1" {
		t.Errorf("результат = %+v", res)
	}
	if len(deleted) != 1 || deleted[0] == "users/u1/projects/p1/playlists/old.mp4" ||
		!strings.HasPrefix(deleted[0], "users/u1/projects/p1/playlists/") || !strings.HasSuffix(deleted[0], "-new.mp4") {
		t.Errorf("удалены %v, ожидалась только копия", deleted)
	}
}

func TestProgramService_Apply_ProgramNotFound(t *testing.T) {
	programs := &mockProgramRepo{
		getFn: func(context.Context, string, string) (*model.Program, error) {
			return nil, repository.ErrNotFound
		},
	}
	svc := newTestProgramService(programs, &mockProjectRepo{}, &mockFileRepo{}, &mockStore{})

	if _, err := svc.Apply(context.Background(), "u1", "g1", []string{"p1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

func TestProgramService_CreateAndReorder(t *testing.T) {
	var ensured *model.Program
	var order []string
	programs := &mockProgramRepo{
		ensureFn: func(_ context.Context, p *model.Program) error {
			ensured = p
			p.Position = 1
			return nil
		},
		reorderFn: func(_ context.Context, _ string, ids []string) error {
			order = ids
			if len(ids) == 1 {
				return repository.ErrOrderMismatch
			}
			return nil
		},
	}
	svc := newTestProgramService(programs, &mockProjectRepo{}, &mockFileRepo{}, &mockStore{})
	ctx := context.Background()

	p, err := svc.Create(ctx, "u1", "", "Утро")
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if p.ProgramID == "" || ensured.ProgramTitle != "Утро" {
		t.Errorf("программа = %+v", p)
	}

	if err := svc.Reorder(ctx, "u1", []string{"g2", "g1"}); err != nil {
		t.Fatalf("Reorder ошибка: %v", err)
	}
	if order[0] != "g2" {
		t.Errorf("порядок = %v", order)
	}
	if err := svc.Reorder(ctx, "u1", []string{"g1"}); !errors.Is(err, ErrValidation) {
		t.Errorf("неполный список: ошибка = %v", err)
	}
}

func TestProgramService_Delete(t *testing.T) {
	programs := &mockProgramRepo{
		deleteFn: func(context.Context, string, string) ([]string, error) {
			return []string{"users/u1/programming/g1/a", "users/u1/programming/g1/b"}, nil
		},
	}
	store := &mockStore{
		deleteFn: func(_ context.Context, key string) error {
			if key == "users/u1/programming/g1/b" {
				return errors.New("timeout")
			}
			return nil
		},
	}
	svc := newTestProgramService(programs, &mockProjectRepo{}, &mockFileRepo{}, store)

	res, err := svc.Delete(context.Background(), "u1", "g1")
	if err != nil {
		t.Fatalf("Delete ошибка: %v", err)
	}
	if res.DeletedFiles != 2 || len(res.OrphanedKeys) != 1 || res.OrphanedKeys[0] != "users/u1/programming/g1/b" {
		t.Errorf("результат = %+v", res)
	}
}

// Две программы с одинаковым исходным именем не затирают копии друг друга.
func TestProgramService_Apply_SameSourceNameKeepsBoth(t *testing.T) {
	playlist := []*model.FileRecord{
		{FileID: "p1-a", SeqPos: 1, SlotPosition: "a", Key: "users/u1/projects/p1/playlists/old-a.mp4"},
		{FileID: "p1-b", SeqPos: 2, SlotPosition: "b", Key: "users/u1/projects/p1/playlists/old-b.mp4"},
	}
	program := []*model.FileRecord{
		{FileID: "g-a", SlotPosition: "a", FileName: "clip.mp4", Key: "users/u1/programming/g1/clip.mp4"},
		{FileID: "g-b", SlotPosition: "b", FileName: "clip.mp4", Key: "users/u1/programming/g1/clip.mp4"},
	}
	var mu sync.Mutex
	var copies, deleted []string
	files := &mockFileRepo{
		listByContainerFn: func(_ context.Context, _ string, c model.Container) ([]*model.FileRecord, error) {
			if c.Kind == model.KindProgram {
				return program, nil
			}
			return playlist, nil
		},
	}
	store := &mockStore{
		copyFn: func(_ context.Context, _, dst string, _ model.AccessType) error {
			mu.Lock()
			defer mu.Unlock()
			copies = append(copies, dst)
			return nil
		},
		deleteFn: func(_ context.Context, key string) error {
			mu.Lock()
			defer mu.Unlock()
			deleted = append(deleted, key)
			return nil
		},
	}
	svc := newTestProgramService(&mockProgramRepo{}, &mockProjectRepo{}, files, store)

	res, err := svc.Apply(context.Background(), "u1", "g1", []string{"p1"})
	if err != nil {
		t.Fatalf("Apply ошибка: %v", err)
	}
	if len(res.Replaced) != 2 || len(res.Errors) != 0 {
		t.Fatalf("результат = %+v", res)
	}
	if len(copies) != 2 || copies[0] == copies[1] {
		t.Errorf("копии = %v, ожидались два разных ключа", copies)
	}
	for _, key := range deleted {
		for _, c := range copies {
			if key == c {
				t.Errorf("удалена свежая копия %s", key)
			}
		}
	}
}
