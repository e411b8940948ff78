package model

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Раскладка ключей в хранилище. Операции копирования и переноса
// опираются на неё, поэтому формат менять нельзя. Каждый ключ,
// который сервис создаёт сам, уникален: в нём есть uuid записи.
//
//	users/{userId}/projects/{projectId}/files/{uuid}-{name}
//	users/{userId}/projects/{projectId}/playlists/{unixMillis}-{uuid}-{name}
//	users/{userId}/programming/{programId}/{unixMillis}-{uuid}-{name}
//	users/{userId}/rendered/{projectId}/output-{unixMillis}-{uuid}.mp4
//	users/{userId}/packages/playlists_{unixMillis}.zip

var (
	slotPattern = regexp.MustCompile(`^[a-z]$`)
	// keyIDPrefix — "{unixMillis}-{uuid}-" или "{uuid}-" в начале имени объекта
	keyIDPrefix = regexp.MustCompile(`^(\d+-)?[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}-`)
)

// ValidSlot проверяет позицию слота: одна строчная латинская буква или пустая строка.
func ValidSlot(slot string) bool {
	return slot == "" || slotPattern.MatchString(slot)
}

// SanitizeFileName приводит имя файла к безопасному виду:
// обрезает пробелы по краям, заменяет последовательности пробельных
// символов на "_" и удаляет всё, кроме букв, цифр и ._-().
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	inSpace := false
	for _, r := range name {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-()", r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// OwnerPrefix возвращает префикс ключей для списка.
// Для рендеров префикс — пространство rendered.
func OwnerPrefix(userID string, c Container) string {
	switch c.Kind {
	case KindFiles:
		return fmt.Sprintf("users/%s/projects/%s/files/", userID, c.ID)
	case KindPlaylist:
		return fmt.Sprintf("users/%s/projects/%s/playlists/", userID, c.ID)
	case KindRender:
		return fmt.Sprintf("users/%s/rendered/%s/", userID, c.ID)
	case KindProgram:
		return fmt.Sprintf("users/%s/programming/%s/", userID, c.ID)
	default:
		return fmt.Sprintf("users/%s/", userID)
	}
}

// UploadKey строит ключ для новой загрузки клиентом.
// fileName должен быть уже санитизирован.
func UploadKey(userID string, c Container, id, fileName string, now time.Time) string {
	prefix := OwnerPrefix(userID, c)
	if c.Kind == KindFiles {
		return prefix + id + "-" + fileName
	}
	return fmt.Sprintf("%s%d-%s-%s", prefix, now.UnixMilli(), id, fileName)
}

// PlaylistCopyKey — ключ копии объекта в плейлисте проекта
// (перенос из банка файлов, применение программы). id — FileID новой записи;
// префикс с uuid исходного ключа отбрасывается, остаётся исходное имя.
func PlaylistCopyKey(userID, projectID, id, sourceKey string, now time.Time) string {
	name := keyIDPrefix.ReplaceAllString(path.Base(sourceKey), "")
	return fmt.Sprintf("%s%d-%s-%s", OwnerPrefix(userID, ProjectContainer(KindPlaylist, projectID)), now.UnixMilli(), id, name)
}

// RenderKey — ключ результата рендера плейлиста. id — FileID записи рендера.
func RenderKey(userID, projectID, id string, now time.Time) string {
	return fmt.Sprintf("%soutput-%d-%s.mp4", OwnerPrefix(userID, ProjectContainer(KindRender, projectID)), now.UnixMilli(), id)
}

// PackageKey — ключ zip-архива упакованных плейлистов.
func PackageKey(userID string, now time.Time) string {
	return fmt.Sprintf("users/%s/packages/playlists_%d.zip", userID, now.UnixMilli())
}

// KeyBelongsTo проверяет, что ключ лежит внутри префикса списка
// и не содержит попыток выхода за его пределы.
func KeyBelongsTo(key, userID string, c Container) bool {
	prefix := OwnerPrefix(userID, c)
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return false
	}
	rest := key[len(prefix):]
	return !strings.Contains(rest, "/") && rest != "." && rest != ".."
}
