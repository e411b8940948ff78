// Пакет archive — сборка zip-архива плейлистов с манифестом metadata.json.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ManifestName — имя файла манифеста, добавляется в архив последним.
const ManifestName = "metadata.json"

// Manifest описывает содержимое архива.
type Manifest struct {
	UserID      string             `json:"userId"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Playlists   []PlaylistManifest `json:"playlists"`
}

// PlaylistManifest — один плейлист проекта в архиве.
type PlaylistManifest struct {
	ProjectTitle string         `json:"projectTitle"`
	ProjectID    string         `json:"projectId"`
	Files        []FileManifest `json:"files"`
}

// FileManifest — один файл плейлиста; Path — имя записи внутри архива.
type FileManifest struct {
	FileName   string    `json:"fileName"`
	Path       string    `json:"path"`
	SeqPos     int       `json:"seqPos"`
	Key        string    `json:"key"`
	Duration   *string   `json:"duration"`
	FrameRate  *string   `json:"frameRate"`
	Resolution *string   `json:"resolution"`
	FileID     string    `json:"fileId"`
	ProjectID  string    `json:"projectId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FileCount возвращает общее число файлов во всех плейлистах.
func (m *Manifest) FileCount() int {
	n := 0
	for _, p := range m.Playlists {
		n += len(p.Files)
	}
	return n
}

// Writer последовательно пишет файлы плейлистов в zip (deflate, уровень 9)
// и накапливает манифест. Не безопасен для конкурентного использования.
type Writer struct {
	zw       *zip.Writer
	manifest Manifest
	names    map[string]bool
	entries  int
	closed   bool
}

// NewWriter создаёт Writer поверх w.
func NewWriter(w io.Writer, userID string, now time.Time) *Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return &Writer{
		zw: zw,
		manifest: Manifest{
			UserID:      userID,
			GeneratedAt: now.UTC(),
			Playlists:   []PlaylistManifest{},
		},
		names: make(map[string]bool),
	}
}

// StartPlaylist открывает раздел манифеста для следующего проекта.
func (w *Writer) StartPlaylist(projectID, projectTitle string) {
	w.manifest.Playlists = append(w.manifest.Playlists, PlaylistManifest{
		ProjectTitle: projectTitle,
		ProjectID:    projectID,
		Files:        []FileManifest{},
	})
}

// AddFile копирует локальный файл src в архив как
// {projectTitle}/{seqPos:02}_{fileName} и добавляет его в манифест
// текущего плейлиста.
func (w *Writer) AddFile(entry FileManifest, src string) error {
	if w.closed {
		return fmt.Errorf("архив уже закрыт")
	}
	if len(w.manifest.Playlists) == 0 {
		return fmt.Errorf("файл %s добавлен до StartPlaylist", entry.FileName)
	}
	current := &w.manifest.Playlists[len(w.manifest.Playlists)-1]

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("ошибка открытия %s: %w", src, err)
	}
	defer f.Close()

	entry.Path = w.uniqueName(EntryName(current.ProjectTitle, current.ProjectID, entry.SeqPos, entry.FileName))
	if entry.ProjectID == "" {
		entry.ProjectID = current.ProjectID
	}

	dst, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     entry.Path,
		Method:   zip.Deflate,
		Modified: w.manifest.GeneratedAt,
	})
	if err != nil {
		return fmt.Errorf("ошибка создания записи %s: %w", entry.Path, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("ошибка записи %s в архив: %w", entry.Path, err)
	}

	current.Files = append(current.Files, entry)
	w.entries++
	return nil
}

// Entries — число файловых записей (без манифеста).
func (w *Writer) Entries() int {
	return w.entries
}

// Close добавляет metadata.json и завершает архив.
func (w *Writer) Close() (*Manifest, error) {
	if w.closed {
		return nil, fmt.Errorf("архив уже закрыт")
	}
	w.closed = true

	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации манифеста: %w", err)
	}

	dst, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     ManifestName,
		Method:   zip.Deflate,
		Modified: w.manifest.GeneratedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания манифеста: %w", err)
	}
	if _, err := dst.Write(data); err != nil {
		return nil, fmt.Errorf("ошибка записи манифеста: %w", err)
	}
	if err := w.zw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения архива: %w", err)
	}

	m := w.manifest
	return &m, nil
}

// EntryName строит имя записи: каталог проекта и позиция с ведущим нулём.
func EntryName(projectTitle, projectID string, seqPos int, fileName string) string {
	dir := safeSegment(projectTitle)
	if dir == "" {
		dir = safeSegment(projectID)
	}
	return fmt.Sprintf("%s/%02d_%s", dir, seqPos, safeSegment(fileName))
}

// safeSegment убирает разделители путей и обходы каталогов.
func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(s))
	if s == "." || s == ".." {
		return "_"
	}
	return s
}

// uniqueName добавляет суффикс при совпадении имён (одинаковый seqPos и имя).
func (w *Writer) uniqueName(name string) string {
	if !w.names[name] {
		w.names[name] = true
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !w.names[candidate] {
			w.names[candidate] = true
			return candidate
		}
	}
}
