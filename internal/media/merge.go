package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Merger склеивает файлы в один в заданном порядке.
type Merger interface {
	Merge(ctx context.Context, inputs []string, output string) error
}

// FFmpeg — Merger через concat demuxer без перекодирования.
type FFmpeg struct {
	binPath string
}

// NewFFmpeg создаёт Merger. binPath — путь к бинарнику ffmpeg.
func NewFFmpeg(binPath string) *FFmpeg {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpeg{binPath: binPath}
}

// Merge записывает список concat рядом с output и запускает ffmpeg.
// Список удаляется после завершения.
func (m *FFmpeg) Merge(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.New("ffmpeg: нет входных файлов")
	}

	listPath := output + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(concatList(inputs)), 0o600); err != nil {
		return fmt.Errorf("ошибка записи списка concat: %w", err)
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, m.binPath,
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 2048))
	}
	return nil
}

// concatList формирует файл для concat demuxer. Одинарные кавычки
// в путях экранируются как '\''.
func concatList(inputs []string) string {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			abs = in
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
