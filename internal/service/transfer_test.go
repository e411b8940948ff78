package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// sourcesOnly — Exists, где существуют исходники, но не ключи плейлистов.
func sourcesOnly(_ context.Context, key string) (bool, error) {
	return !strings.Contains(key, "/playlists/"), nil
}

func TestTransferService_Transfer(t *testing.T) {
	var mu sync.Mutex
	var inserted []*model.FileRecord
	var copied [][2]string
	var nextCalls int

	files := &mockFileRepo{
		nextSeqPosFn: func(_ context.Context, _ string, c model.Container) (int, error) {
			mu.Lock()
			nextCalls++
			mu.Unlock()
			if c.ID == "p1" {
				return 5, nil
			}
			return 1, nil
		},
		insertFn: func(_ context.Context, rec *model.FileRecord) error {
			mu.Lock()
			defer mu.Unlock()
			inserted = append(inserted, rec)
			return nil
		},
	}
	store := &mockStore{
		existsFn: sourcesOnly,
		copyFn: func(_ context.Context, src, dst string, acl model.AccessType) error {
			if acl != model.AccessPrivate {
				t.Errorf("ACL копии = %q", acl)
			}
			mu.Lock()
			defer mu.Unlock()
			copied = append(copied, [2]string{src, dst})
			return nil
		},
	}
	svc := NewTransferService(files, &mockProjectRepo{}, store, testBatchOptions(t), testLogger())
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	res, err := svc.Transfer(context.Background(), "u1", []TransferItem{
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/k1-a.mp4", FileName: "a.mp4", Duration: strPtr("3")},
		{ProjectID: "p2", SourceKey: "users/u1/projects/p1/files/k2-b.mp4", FileName: "b.mp4"},
		{ProjectID: "p1", SourceKey: "users/u1/programming/g1/17-k3-c.mp4", FileName: "c.mp4", SlotPosition: "a"},
	})
	if err != nil {
		t.Fatalf("Transfer ошибка: %v", err)
	}

	if len(res.Files) != 3 || len(res.Errors) != 0 {
		t.Fatalf("результат: files=%d errors=%v", len(res.Files), res.Errors)
	}
	if nextCalls != 2 {
		t.Errorf("NextSeqPos вызван %d раз, ожидалось по разу на плейлист", nextCalls)
	}
	if res.Files[0].SeqPos != 5 || res.Files[1].SeqPos != 1 || res.Files[2].SeqPos != 6 {
		t.Errorf("seqPos = %d,%d,%d, ожидалось 5,1,6", res.Files[0].SeqPos, res.Files[1].SeqPos, res.Files[2].SeqPos)
	}
	if res.Files[0].Key != "users/u1/projects/p1/playlists/1700000000123-"+res.Files[0].FileID+"-k1-a.mp4" {
		t.Errorf("ключ по умолчанию = %q", res.Files[0].Key)
	}
	if res.Files[2].SlotPosition != "a" || *res.Files[0].Duration != "3" {
		t.Errorf("поля не перенесены: %+v", res.Files[2])
	}
	ids := map[string]bool{}
	for _, f := range res.Files {
		ids[f.FileID] = true
		if f.Container.Kind != model.KindPlaylist || f.AccessType != model.AccessPrivate {
			t.Errorf("запись = %+v", f)
		}
	}
	if len(ids) != 3 {
		t.Error("fileId не уникальны")
	}
	if len(copied) != 3 || len(inserted) != 3 {
		t.Errorf("copy=%d insert=%d", len(copied), len(inserted))
	}
}

func TestTransferService_Transfer_PartialFailure(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	files := &mockFileRepo{
		insertFn: func(_ context.Context, rec *model.FileRecord) error {
			if rec.SlotPosition == "b" {
				return repository.ErrConflict
			}
			return nil
		},
	}
	store := &mockStore{
		existsFn: func(_ context.Context, key string) (bool, error) {
			return !strings.Contains(key, "gone") && !strings.Contains(key, "/playlists/"), nil
		},
		copyFn: func(_ context.Context, src, _ string, _ model.AccessType) error {
			if strings.Contains(src, "broken") {
				return errors.New("copy failed")
			}
			return nil
		},
		deleteFn: func(_ context.Context, key string) error {
			mu.Lock()
			defer mu.Unlock()
			deleted = append(deleted, key)
			return nil
		},
	}
	svc := NewTransferService(files, &mockProjectRepo{}, store, testBatchOptions(t), testLogger())

	res, err := svc.Transfer(context.Background(), "u1", []TransferItem{
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/ok.mp4"},
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/gone.mp4"},
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/broken.mp4"},
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/slot.mp4", SlotPosition: "b"},
	})
	if err != nil {
		t.Fatalf("Transfer ошибка: %v", err)
	}
	if len(res.Files) != 1 || len(res.Errors) != 3 {
		t.Fatalf("files=%d errors=%v", len(res.Files), res.Errors)
	}
	if res.Files[0].FileName != "ok.mp4" {
		t.Errorf("FileName = %q", res.Files[0].FileName)
	}
	if len(deleted) != 1 || !strings.HasPrefix(deleted[0], "users/u1/projects/p1/playlists/") || !strings.HasSuffix(deleted[0], "-slot.mp4") {
		t.Errorf("компенсация удалила %v", deleted)
	}
}

func TestTransferService_Transfer_UnknownProject(t *testing.T) {
	projects := &mockProjectRepo{
		getFn: func(_ context.Context, _, projectID string) (*model.Project, error) {
			if projectID == "missing" {
				return nil, repository.ErrNotFound
			}
			return &model.Project{ProjectID: projectID}, nil
		},
	}
	copies := 0
	store := &mockStore{
		existsFn: sourcesOnly,
		copyFn: func(context.Context, string, string, model.AccessType) error {
			copies++
			return nil
		},
	}
	opts := testBatchOptions(t)
	opts.Concurrency = 1
	svc := NewTransferService(&mockFileRepo{}, projects, store, opts, testLogger())

	res, err := svc.Transfer(context.Background(), "u1", []TransferItem{
		{ProjectID: "missing", SourceKey: "users/u1/projects/p1/files/a.mp4"},
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/b.mp4"},
		{ProjectID: "missing", SourceKey: "users/u1/projects/p1/files/c.mp4"},
	})
	if err != nil {
		t.Fatalf("Transfer ошибка: %v", err)
	}
	if len(res.Files) != 1 || len(res.Errors) != 2 || copies != 1 {
		t.Errorf("files=%d errors=%d copies=%d", len(res.Files), len(res.Errors), copies)
	}
}

func TestTransferService_Transfer_Validation(t *testing.T) {
	svc := NewTransferService(&mockFileRepo{}, &mockProjectRepo{}, &mockStore{
		copyFn: func(context.Context, string, string, model.AccessType) error {
			t.Error("Copy не должен вызываться")
			return nil
		},
	}, testBatchOptions(t), testLogger())

	tests := []struct {
		name string
		item TransferItem
	}{
		{"чужой источник", TransferItem{ProjectID: "p1", SourceKey: "users/u2/projects/p1/files/a.mp4"}},
		{"назначение вне плейлиста", TransferItem{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/a.mp4", DestinationKey: "users/u1/projects/p1/files/b.mp4"}},
		{"слот", TransferItem{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/a.mp4", SlotPosition: "zz"}},
		{"без проекта", TransferItem{SourceKey: "users/u1/projects/p1/files/a.mp4"}},
		{"обход каталогов", TransferItem{ProjectID: "p1", SourceKey: "users/u1/../u2/projects/p1/files/a.mp4"}},
		{"повтор назначения", TransferItem{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/b.mp4", DestinationKey: "users/u1/projects/p1/playlists/same.mp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transfer(context.Background(), "u1", []TransferItem{
				{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/ok.mp4", DestinationKey: "users/u1/projects/p1/playlists/same.mp4"},
				tt.item,
			})
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, ожидалась ErrValidation", err)
			}
		})
	}
}

// Повторный перенос того же объекта в тот же плейлист в ту же миллисекунду
// создаёт вторую копию, а первая запись и её объект остаются.
func TestTransferService_Transfer_TwiceKeepsBothCopies(t *testing.T) {
	const src = "users/u1/projects/p1/files/0b5e3f0e-8c1a-4d2b-9f3e-2a6c7d8e9f01-clip.mp4"
	mem := newMemStore(map[string]string{src: "clip"})
	keys := newRecordKeys()
	files := &mockFileRepo{
		insertFn:    func(_ context.Context, rec *model.FileRecord) error { return keys.add(rec) },
		keyExistsFn: keys.exists,
	}
	svc := NewTransferService(files, &mockProjectRepo{}, mem.mock(), testBatchOptions(t), testLogger())
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	var created []*model.FileRecord
	for range 2 {
		res, err := svc.Transfer(context.Background(), "u1", []TransferItem{{ProjectID: "p1", SourceKey: src}})
		if err != nil {
			t.Fatalf("Transfer ошибка: %v", err)
		}
		if len(res.Files) != 1 || len(res.Errors) != 0 {
			t.Fatalf("результат: files=%d errors=%v", len(res.Files), res.Errors)
		}
		created = append(created, res.Files[0])
	}

	if created[0].Key == created[1].Key {
		t.Fatalf("оба переноса получили ключ %q", created[0].Key)
	}
	for _, rec := range created {
		if data, ok := mem.get(rec.Key); !ok || data != "clip" {
			t.Errorf("объект записи %s: %q, %v", rec.Key, data, ok)
		}
		if !strings.HasSuffix(rec.Key, "-"+rec.FileID+"-clip.mp4") {
			t.Errorf("ключ %q без fileId записи", rec.Key)
		}
	}
	if d := mem.deletedKeys(); len(d) != 0 {
		t.Errorf("удалены %v", d)
	}
}

// Клиентский ключ назначения, занятый живым объектом, — конфликт элемента:
// объект не перезаписывается и не удаляется.
func TestTransferService_Transfer_ExistingDestinationConflict(t *testing.T) {
	const (
		src  = "users/u1/projects/p1/files/new.mp4"
		live = "users/u1/projects/p1/playlists/live.mp4"
	)
	mem := newMemStore(map[string]string{src: "new", live: "live"})
	store := mem.mock()
	inner := store.copyFn
	store.copyFn = func(ctx context.Context, from, to string, acl model.AccessType) error {
		if to == live {
			t.Error("Copy поверх существующего объекта")
		}
		return inner(ctx, from, to, acl)
	}
	keys := newRecordKeys()
	_ = keys.add(&model.FileRecord{FileID: "live", Key: live})
	files := &mockFileRepo{
		insertFn:    func(_ context.Context, rec *model.FileRecord) error { return keys.add(rec) },
		keyExistsFn: keys.exists,
	}
	svc := NewTransferService(files, &mockProjectRepo{}, store, testBatchOptions(t), testLogger())

	res, err := svc.Transfer(context.Background(), "u1", []TransferItem{
		{ProjectID: "p1", SourceKey: src, DestinationKey: live},
		{ProjectID: "p1", SourceKey: src},
	})
	if err != nil {
		t.Fatalf("Transfer ошибка: %v", err)
	}
	if len(res.Files) != 1 || len(res.Errors) != 1 {
		t.Fatalf("результат: files=%d errors=%v", len(res.Files), res.Errors)
	}
	if res.Errors[0].ID != src || !strings.Contains(res.Errors[0].Error, ErrConflict.Error()) {
		t.Errorf("ошибка элемента = %+v", res.Errors[0])
	}
	if data, ok := mem.get(live); !ok || data != "live" {
		t.Errorf("живой объект = %q, %v", data, ok)
	}
	if d := mem.deletedKeys(); len(d) != 0 {
		t.Errorf("удалены %v", d)
	}
}

// Если ключ занял параллельный перенос между проверкой и вставкой,
// вставка получает конфликт, а объект чужой записи не удаляется.
func TestTransferService_Transfer_InsertConflictKeepsOwnedObject(t *testing.T) {
	const dst = "users/u1/projects/p1/playlists/race.mp4"
	var deleted []string
	files := &mockFileRepo{
		insertFn: func(context.Context, *model.FileRecord) error { return repository.ErrConflict },
		keyExistsFn: func(_ context.Context, key string) (bool, error) {
			return key == dst, nil
		},
	}
	store := &mockStore{
		existsFn: sourcesOnly,
		deleteFn: func(_ context.Context, key string) error {
			deleted = append(deleted, key)
			return nil
		},
	}
	opts := testBatchOptions(t)
	opts.Concurrency = 1
	svc := NewTransferService(files, &mockProjectRepo{}, store, opts, testLogger())

	res, err := svc.Transfer(context.Background(), "u1", []TransferItem{
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/a.mp4", DestinationKey: dst},
		{ProjectID: "p1", SourceKey: "users/u1/projects/p1/files/b.mp4"},
	})
	if err != nil {
		t.Fatalf("Transfer ошибка: %v", err)
	}
	if len(res.Files) != 0 || len(res.Errors) != 2 {
		t.Fatalf("результат: files=%d errors=%v", len(res.Files), res.Errors)
	}
	if len(deleted) != 1 || deleted[0] == dst || !strings.HasSuffix(deleted[0], "-b.mp4") {
		t.Errorf("удалены %v, ожидалась только собственная копия b.mp4", deleted)
	}
}
