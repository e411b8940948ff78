// Пакет media — работа с медиафайлами через внешние процессы:
// извлечение метаданных (ffprobe) и склейка плейлиста (ffmpeg).
package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/vansante/go-ffprobe.v2"

	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// Prober извлекает метаданные из локального файла.
type Prober interface {
	Probe(ctx context.Context, path string) (*model.MediaMetadata, error)
}

// FFProbe — Prober поверх ffprobe.
type FFProbe struct{}

// NewFFProbe создаёт Prober. binPath — путь к бинарнику ffprobe
// (пусто — поиск в PATH).
func NewFFProbe(binPath string) *FFProbe {
	if binPath != "" {
		ffprobe.SetFFProbeBinPath(binPath)
	}
	return &FFProbe{}
}

// Probe запускает ffprobe для файла. Ненулевой код выхода или
// некорректный вывод — ошибка только для этого файла.
func (p *FFProbe) Probe(ctx context.Context, path string) (*model.MediaMetadata, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return metadataFromProbe(data)
}

// metadataFromProbe берёт длительность из format, а разрешение и частоту
// кадров — из первого видеопотока (или первого потока, если видео нет).
func metadataFromProbe(data *ffprobe.ProbeData) (*model.MediaMetadata, error) {
	if data == nil || data.Format == nil {
		return nil, errors.New("ffprobe: нет секции format")
	}
	if len(data.Streams) == 0 {
		return nil, errors.New("ffprobe: нет медиапотоков")
	}

	md := &model.MediaMetadata{}
	if data.Format.DurationSeconds > 0 {
		md.Duration = strconv.FormatFloat(data.Format.DurationSeconds, 'f', -1, 64)
	}

	stream := data.Streams[0]
	for _, s := range data.Streams {
		if s != nil && s.CodecType == "video" {
			stream = s
			break
		}
	}
	if stream == nil {
		return md, nil
	}

	md.FrameRate = stream.AvgFrameRate
	if md.FrameRate == "" || md.FrameRate == "0/0" {
		md.FrameRate = stream.RFrameRate
	}
	if md.FrameRate == "0/0" {
		md.FrameRate = ""
	}
	if stream.Width > 0 && stream.Height > 0 {
		md.Resolution = fmt.Sprintf("%dx%d", stream.Width, stream.Height)
	}
	return md, nil
}
