package service

import (
	"context"
	"strings"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// owners — проверка и создание владельцев списков (проектов и программ).
type owners struct {
	projects repository.ProjectRepository
	programs repository.ProgramRepository
}

// validID проверяет идентификатор, который становится сегментом ключа.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/\\")
}

// checkContainer проверяет userId и адрес списка до любых побочных эффектов.
func checkContainer(userID string, c model.Container) error {
	if !validID(userID) {
		return validationf("некорректный userId %q", userID)
	}
	if _, err := model.ParseContainerKind(string(c.Kind)); err != nil {
		return validationf("%v", err)
	}
	if !validID(c.ID) {
		return validationf("некорректный идентификатор владельца %q", c.ID)
	}
	return nil
}

// exists возвращает ErrNotFound, если проекта или программы нет.
func (o owners) exists(ctx context.Context, userID string, c model.Container) error {
	var err error
	if c.Kind.OwnedByProgram() {
		_, err = o.programs.Get(ctx, userID, c.ID)
		return mapRepoErr(err, "программа "+c.ID)
	}
	_, err = o.projects.Get(ctx, userID, c.ID)
	return mapRepoErr(err, "проект "+c.ID)
}

// ensure создаёт проект или программу, если их ещё нет.
// Непустой title обновляет название.
func (o owners) ensure(ctx context.Context, userID string, c model.Container, title string) error {
	if c.Kind.OwnedByProgram() {
		return mapRepoErr(o.programs.Ensure(ctx, &model.Program{
			UserID: userID, ProgramID: c.ID, ProgramTitle: title,
		}), "ошибка сохранения программы")
	}
	return mapRepoErr(o.projects.Ensure(ctx, &model.Project{
		UserID: userID, ProjectID: c.ID, ProjectTitle: title,
	}), "ошибка сохранения проекта")
}

// ownedRecord загружает запись и проверяет, что она принадлежит
// пользователю и адресованному проекту или программе.
func ownedRecord(ctx context.Context, files repository.FileRepository, userID string, owner model.Container, fileID string) (*model.FileRecord, error) {
	rec, err := files.Get(ctx, fileID)
	if err != nil {
		return nil, mapRepoErr(err, "файл "+fileID)
	}
	if rec.UserID != userID || !rec.Container.SameOwner(owner) {
		return nil, mapRepoErr(repository.ErrNotFound, "файл "+fileID)
	}
	return rec, nil
}
