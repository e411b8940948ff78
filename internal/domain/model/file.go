// Пакет model — доменные типы mediadeck: проекты, программы,
// записи файлов и заметки.
package model

import "time"

// AccessType — режим доступа к объекту в хранилище (определяет ACL).
type AccessType string

const (
	// AccessPrivate — объект доступен только по подписанному URL.
	AccessPrivate AccessType = "private"
	// AccessPublicRead — объект доступен на чтение всем.
	AccessPublicRead AccessType = "public-read"
)

// Valid проверяет, что значение входит в допустимый набор.
func (a AccessType) Valid() bool {
	return a == AccessPrivate || a == AccessPublicRead
}

// MaxNoteLength — максимальная длина заметки в символах.
const MaxNoteLength = 180

// FileRecord — запись одного медиафайла в любом контейнере:
// банк файлов проекта, плейлист, результаты рендера или банк программы.
// Хранится в таблице file_records.
type FileRecord struct {
	// FileID — UUID записи, генерируется при создании, не меняется
	FileID string
	// UserID — владелец записи
	UserID string
	// Container — список, которому принадлежит запись
	Container Container
	// Key — полный ключ объекта в хранилище
	Key string
	// FileName — отображаемое имя (санитизировано при загрузке)
	FileName string
	// AccessType — private или public-read
	AccessType AccessType
	// SeqPos — позиция в списке, начиная с 1
	SeqPos int
	// SlotPosition — буква a-z или пустая строка
	SlotPosition string
	// Duration — длительность (строка секунд от ffprobe)
	Duration *string
	// FrameRate — частота кадров (например, 30000/1001)
	FrameRate *string
	// Resolution — разрешение в формате WxH
	Resolution *string
	// MetadataError — ошибка извлечения метаданных, если была
	MetadataError *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// Notes — заметки (только для плейлиста)
	Notes []Note
}

// Note — пользовательская заметка к файлу плейлиста.
type Note struct {
	UniqueID  string
	FileID    string
	Text      string
	CreatedAt time.Time
}

// MediaMetadata — результат работы prober для одного файла.
type MediaMetadata struct {
	Duration   string
	FrameRate  string
	Resolution string
}

// MetadataUpdate — обновление метаданных одной записи после извлечения.
// Ровно одно из Metadata / Err задано.
type MetadataUpdate struct {
	FileID   string
	Metadata *MediaMetadata
	Err      string
}

// Clone возвращает глубокую копию записи (для компенсирующего восстановления).
func (f *FileRecord) Clone() *FileRecord {
	c := *f
	c.Duration = cloneString(f.Duration)
	c.FrameRate = cloneString(f.FrameRate)
	c.Resolution = cloneString(f.Resolution)
	c.MetadataError = cloneString(f.MetadataError)
	if f.Notes != nil {
		c.Notes = make([]Note, len(f.Notes))
		copy(c.Notes, f.Notes)
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
