package model

import (
	"fmt"
	"time"
)

// ContainerKind — тип списка, в котором живёт запись файла.
type ContainerKind string

const (
	// KindFiles — общий банк файлов проекта.
	KindFiles ContainerKind = "files"
	// KindPlaylist — упорядоченный плейлист проекта (рендер, упаковка).
	KindPlaylist ContainerKind = "playlist"
	// KindRender — результаты рендера плейлиста.
	KindRender ContainerKind = "render"
	// KindProgram — банк файлов программы.
	KindProgram ContainerKind = "program"
)

// ParseContainerKind разбирает тип списка из строки (сегмент пути, JSON).
func ParseContainerKind(s string) (ContainerKind, error) {
	switch k := ContainerKind(s); k {
	case KindFiles, KindPlaylist, KindRender, KindProgram:
		return k, nil
	default:
		return "", fmt.Errorf("недопустимый тип списка %q, допустимые: files, playlist, render, program", s)
	}
}

// OwnedByProgram — true для списков, принадлежащих программе, а не проекту.
func (k ContainerKind) OwnedByProgram() bool {
	return k == KindProgram
}

// Container адресует один список: тип + идентификатор владельца
// (projectId или programId).
type Container struct {
	Kind ContainerKind
	ID   string
}

func (c Container) String() string {
	return string(c.Kind) + ":" + c.ID
}

// SameOwner — списки принадлежат одному проекту или одной программе.
// Для проекта тип списка не учитывается.
func (c Container) SameOwner(o Container) bool {
	return c.ID == o.ID && c.Kind.OwnedByProgram() == o.Kind.OwnedByProgram()
}

// ProjectContainer — список проекта указанного типа.
func ProjectContainer(kind ContainerKind, projectID string) Container {
	return Container{Kind: kind, ID: projectID}
}

// ProgramContainer — банк файлов программы.
func ProgramContainer(programID string) Container {
	return Container{Kind: KindProgram, ID: programID}
}

// Project — проект пользователя: банк файлов, плейлист и рендеры.
type Project struct {
	UserID       string
	ProjectID    string
	ProjectTitle string
	CreatedAt    time.Time
}

// Program — программа пользователя (отдельный банк файлов со слотами).
type Program struct {
	UserID       string
	ProgramID    string
	ProgramTitle string
	// Position — порядок программы в списке пользователя
	Position  int
	CreatedAt time.Time
}
