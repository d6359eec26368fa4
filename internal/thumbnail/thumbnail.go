// Пакет thumbnail — генерация превью для изображений.
// Превью вписывается в квадрат заданного размера с сохранением пропорций
// и сохраняется в PNG рядом с исходным файлом ({key}.thumb.png).
// Генерация best-effort: ошибка логируется и не возвращается вызывающему.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "golang.org/x/image/webp" // регистрация декодера WebP для image.Decode

	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/storage/filestore"
)

// maxPixels — предел площади исходного изображения (защита от decompression bomb).
const maxPixels = 64_000_000

// thumbnailsTotal — результаты генерации превью.
var thumbnailsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fv_thumbnails_total",
		Help: "Количество попыток генерации превью по результату",
	},
	[]string{"result"},
)

// Generator — генератор превью.
type Generator struct {
	store  *filestore.FileStore
	size   int
	logger *slog.Logger
}

// New создаёт генератор превью с ограничивающим квадратом size×size.
func New(store *filestore.FileStore, size int, logger *slog.Logger) *Generator {
	return &Generator{
		store:  store,
		size:   size,
		logger: logger.With(slog.String("component", "thumbnail")),
	}
}

// Generate строит превью для файла по ключу, если mime — изображение.
// Возвращает true, если превью записано.
func (g *Generator) Generate(ctx context.Context, key, mime string) bool {
	if !model.IsImageMime(mime) {
		thumbnailsTotal.WithLabelValues("skipped").Inc()
		return false
	}
	if ctx.Err() != nil {
		thumbnailsTotal.WithLabelValues("skipped").Inc()
		return false
	}

	if err := g.generate(key); err != nil {
		thumbnailsTotal.WithLabelValues("failed").Inc()
		g.logger.Warn("Не удалось создать превью",
			slog.String("key", key),
			slog.String("mime", mime),
			slog.String("error", err.Error()),
		)
		return false
	}

	thumbnailsTotal.WithLabelValues("ok").Inc()
	g.logger.Debug("Превью создано", slog.String("key", key))
	return true
}

func (g *Generator) generate(key string) error {
	f, err := g.store.Open(key)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("чтение заголовка изображения: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return fmt.Errorf("изображение слишком большое: %dx%d", cfg.Width, cfg.Height)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("перемотка файла: %w", err)
	}

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("декодирование изображения: %w", err)
	}

	thumb := imaging.Fit(img, g.size, g.size, imaging.Lanczos)

	return g.store.WriteAtomic(filestore.ThumbKey(key), func(w io.Writer) error {
		if err := imaging.Encode(w, thumb, imaging.PNG); err != nil {
			return fmt.Errorf("кодирование PNG: %w", err)
		}
		return nil
	})
}

// Available сообщает, есть ли превью для файла.
func (g *Generator) Available(key string) bool {
	return g.store.Exists(filestore.ThumbKey(key))
}
