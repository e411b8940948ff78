package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

func newTestUploadService(files *mockFileRepo, projects *mockProjectRepo, programs *mockProgramRepo, store *mockStore) *UploadService {
	return NewUploadService(files, projects, programs, store, time.Hour, testLogger())
}

func TestUploadService_IssueUploadURL(t *testing.T) {
	var gotType string
	var gotACL model.AccessType
	var gotTTL time.Duration
	store := &mockStore{
		presignPutFn: func(_ context.Context, key, contentType string, acl model.AccessType, ttl time.Duration) (string, error) {
			gotType, gotACL, gotTTL = contentType, acl, ttl
			return "https://s3.test/" + key, nil
		},
	}
	svc := newTestUploadService(&mockFileRepo{}, &mockProjectRepo{}, &mockProgramRepo{}, store)

	res, err := svc.IssueUploadURL(context.Background(), UploadURLRequest{
		UserID:     "u1",
		Container:  model.ProjectContainer(model.KindFiles, "p1"),
		FileName:   " my clip.mp4 ",
		FileType:   "video/mp4",
		AccessType: model.AccessPublicRead,
	})
	if err != nil {
		t.Fatalf("IssueUploadURL ошибка: %v", err)
	}

	if !strings.HasPrefix(res.Key, "users/u1/projects/p1/files/") || !strings.HasSuffix(res.Key, "-my_clip.mp4") {
		t.Errorf("Key = %q", res.Key)
	}
	if res.FileName != "my_clip.mp4" {
		t.Errorf("FileName = %q, ожидалось my_clip.mp4", res.FileName)
	}
	if gotType != "video/mp4" || gotACL != model.AccessPublicRead || gotTTL != time.Hour {
		t.Errorf("подпись: type=%q acl=%q ttl=%v", gotType, gotACL, gotTTL)
	}
}

func TestUploadService_IssueUploadURL_Validation(t *testing.T) {
	svc := newTestUploadService(&mockFileRepo{}, &mockProjectRepo{}, &mockProgramRepo{}, &mockStore{})

	tests := []struct {
		name string
		req  UploadURLRequest
	}{
		{"рендер", UploadURLRequest{UserID: "u1", Container: model.ProjectContainer(model.KindRender, "p1"), FileName: "a.mp4", FileType: "video/mp4", AccessType: model.AccessPrivate}},
		{"пустое имя", UploadURLRequest{UserID: "u1", Container: model.ProjectContainer(model.KindFiles, "p1"), FileName: "???", FileType: "video/mp4", AccessType: model.AccessPrivate}},
		{"accessType", UploadURLRequest{UserID: "u1", Container: model.ProjectContainer(model.KindFiles, "p1"), FileName: "a.mp4", FileType: "video/mp4", AccessType: "public"}},
		{"projectId со слэшем", UploadURLRequest{UserID: "u1", Container: model.ProjectContainer(model.KindFiles, "p1/../p2"), FileName: "a.mp4", FileType: "video/mp4", AccessType: model.AccessPrivate}},
		{"без fileType", UploadURLRequest{UserID: "u1", Container: model.ProjectContainer(model.KindFiles, "p1"), FileName: "a.mp4", AccessType: model.AccessPrivate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IssueUploadURL(context.Background(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, ожидалась ErrValidation", err)
			}
		})
	}
}

func TestUploadService_Finalize(t *testing.T) {
	var ensured *model.Project
	var appended []*model.FileRecord
	files := &mockFileRepo{
		appendFn: func(_ context.Context, userID string, c model.Container, recs []*model.FileRecord) error {
			if userID != "u1" || c != model.ProjectContainer(model.KindFiles, "p1") {
				t.Errorf("Append: userID=%q container=%v", userID, c)
			}
			next := 1
			for _, r := range recs {
				r.FileID = "id-" + r.FileName
				if r.SeqPos <= 0 {
					r.SeqPos = next
					next++
				}
			}
			appended = recs
			return nil
		},
	}
	projects := &mockProjectRepo{
		ensureFn: func(_ context.Context, p *model.Project) error {
			ensured = p
			return nil
		},
	}
	svc := newTestUploadService(files, projects, &mockProgramRepo{}, &mockStore{})

	recs, err := svc.Finalize(context.Background(), FinalizeRequest{
		UserID:     "u1",
		Container:  model.ProjectContainer(model.KindFiles, "p1"),
		OwnerTitle: "Мой проект",
		AccessType: model.AccessPrivate,
		Files: []FinalizeEntry{
			{Key: "users/u1/projects/p1/files/k1", FileName: "a.mp4"},
			{Key: "users/u1/projects/p1/files/k2", FileName: ""},
		},
	})
	if err != nil {
		t.Fatalf("Finalize ошибка: %v", err)
	}

	if ensured == nil || ensured.ProjectTitle != "Мой проект" {
		t.Errorf("проект не создан: %+v", ensured)
	}
	if len(recs) != 2 || len(appended) != 2 {
		t.Fatalf("записей %d, ожидалось 2", len(recs))
	}
	if recs[0].SeqPos != 1 || recs[1].SeqPos != 2 {
		t.Errorf("seqPos = %d,%d, ожидалось 1,2", recs[0].SeqPos, recs[1].SeqPos)
	}
	if recs[1].FileName != "k2" {
		t.Errorf("FileName без имени = %q, ожидалось имя из ключа", recs[1].FileName)
	}
}

func TestUploadService_Finalize_Program(t *testing.T) {
	var ensured *model.Program
	programs := &mockProgramRepo{
		ensureFn: func(_ context.Context, p *model.Program) error {
			ensured = p
			return nil
		},
	}
	projects := &mockProjectRepo{
		ensureFn: func(_ context.Context, _ *model.Project) error {
			t.Error("для программы проект создаваться не должен")
			return nil
		},
	}
	svc := newTestUploadService(&mockFileRepo{}, projects, programs, &mockStore{})

	_, err := svc.Finalize(context.Background(), FinalizeRequest{
		UserID:     "u1",
		Container:  model.ProgramContainer("g1"),
		AccessType: model.AccessPrivate,
		Files:      []FinalizeEntry{{Key: "users/u1/programming/g1/17-id-a.mp4", SlotPosition: "a"}},
	})
	if err != nil {
		t.Fatalf("Finalize ошибка: %v", err)
	}
	if ensured == nil || ensured.ProgramID != "g1" {
		t.Errorf("программа не создана: %+v", ensured)
	}
}

func TestUploadService_Finalize_Rejects(t *testing.T) {
	base := func() FinalizeRequest {
		return FinalizeRequest{
			UserID:     "u1",
			Container:  model.ProjectContainer(model.KindFiles, "p1"),
			AccessType: model.AccessPrivate,
		}
	}

	tests := []struct {
		name  string
		files []FinalizeEntry
		want  error
	}{
		{"пустой список", nil, ErrValidation},
		{"чужой ключ", []FinalizeEntry{{Key: "users/u2/projects/p1/files/k1"}}, ErrValidation},
		{"другой список", []FinalizeEntry{{Key: "users/u1/projects/p1/playlists/k1"}}, ErrValidation},
		{"слот", []FinalizeEntry{{Key: "users/u1/projects/p1/files/k1", SlotPosition: "AB"}}, ErrValidation},
		{"повтор слота", []FinalizeEntry{
			{Key: "users/u1/projects/p1/files/k1", SlotPosition: "a"},
			{Key: "users/u1/projects/p1/files/k2", SlotPosition: "a"},
		}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := &mockFileRepo{
				appendFn: func(context.Context, string, model.Container, []*model.FileRecord) error {
					t.Error("Append не должен вызываться при ошибке валидации")
					return nil
				},
			}
			svc := newTestUploadService(files, &mockProjectRepo{}, &mockProgramRepo{}, &mockStore{})

			req := base()
			req.Files = tt.files
			if _, err := svc.Finalize(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("ошибка = %v, ожидалась %v", err, tt.want)
			}
		})
	}
}

func TestUploadService_Finalize_SlotConflictInStore(t *testing.T) {
	files := &mockFileRepo{
		appendFn: func(context.Context, string, model.Container, []*model.FileRecord) error {
			return repository.ErrConflict
		},
	}
	svc := newTestUploadService(files, &mockProjectRepo{}, &mockProgramRepo{}, &mockStore{})

	_, err := svc.Finalize(context.Background(), FinalizeRequest{
		UserID:     "u1",
		Container:  model.ProjectContainer(model.KindPlaylist, "p1"),
		AccessType: model.AccessPrivate,
		Files:      []FinalizeEntry{{Key: "users/u1/projects/p1/playlists/1-id-a.mp4", SlotPosition: "b"}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ошибка = %v, ожидалась ErrConflict", err)
	}
}
