package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики оркестратора.
var (
	// fileOperationsTotal — операции жизненного цикла файлов.
	fileOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_file_operations_total",
		Help: "Общее количество операций с файлами",
	}, []string{"operation", "status"})

	// deleteRollbacksTotal — компенсирующие восстановления при удалении.
	deleteRollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_delete_rollbacks_total",
		Help: "Количество восстановлений записи после неудачного удаления объекта",
	}, []string{"result"})

	// extractTotal — результаты извлечения метаданных по файлам.
	extractTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_extract_total",
		Help: "Количество файлов, обработанных ffprobe",
	}, []string{"result"})

	// renderDurationSeconds — длительность рендера одного плейлиста.
	renderDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "md_render_duration_seconds",
		Help:    "Длительность рендера плейлиста в секундах",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// packageFilesTotal — файлы, добавленные в архивы.
	packageFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_package_files_total",
		Help: "Количество файлов, упакованных в архивы",
	})
)

// operationStatus — метка status для fileOperationsTotal.
func operationStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
