package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// 注册额外的解码格式。
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyImage    = errors.New("image is empty")
	ErrImageTooLarge = errors.New("image exceeds size limit")
)

// DefaultMaxPixels 未设置 Config.MaxPixels 时的像素上限。
const DefaultMaxPixels = 40_000_000

// NormalizeImage 解码任意支持的格式并重新编码为 JPEG，长边缩放到不超过 cfg.MaxDimension。
func NormalizeImage(data []byte, cfg Config) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if cfg.MaxImageBytes > 0 && int64(len(data)) > cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(data))
	}

	// 先只读头部：压缩后很小的图也可能声明巨大的尺寸。
	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d pixels", ErrImageTooLarge, header.Width, header.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := scaledSize(bounds.Dx(), bounds.Dy(), cfg.MaxDimension)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode image: empty %s bounds", format)
	}

	// JPEG 没有 alpha 通道，统一转成 RGBA 再编码。
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	quality := cfg.JPEGQuality
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// scaledSize 保持宽高比；maxSide <= 0 表示不缩放。
func scaledSize(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		nh := h * maxSide / w
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := w * maxSide / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}
