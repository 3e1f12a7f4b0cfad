package parser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxImageSide = 10000

// PDFParser extracts per page text and the raster images it can decode.
// Images are re-encoded as PNG; encodings the pdf reader cannot decode (for
// example DCT/JPEG streams) are skipped with a warning.
type PDFParser struct{}

func (PDFParser) Name() string { return "pdf" }

func (PDFParser) Parse(ctx context.Context, doc Document) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return parsePDF(ctx, doc)
}

func parsePDF(ctx context.Context, doc Document) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("pdf reader: %w", err)
	}

	res := &Result{}
	var sections []string
	for num := 1; num <= r.NumPage(); num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(num)
		if page.V.IsNull() {
			continue
		}

		text, err := pageText(page)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", num, err))
		}
		sections = append(sections, fmt.Sprintf("## Page %d\n\n%s", num, strings.TrimSpace(text)))

		xobjects := page.Resources().Key("XObject")
		for idx, key := range xobjects.Keys() {
			name := fmt.Sprintf("image_%d_%d.png", num-1, idx)
			img, err := extractImage(xobjects.Key(key), name)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Error extracting image: %v", err))
				continue
			}
			if img == nil {
				continue
			}
			res.Images = append(res.Images, *img)
			sections = append(sections, fmt.Sprintf("\n![%s](%s%s)\n", name, AttachmentScheme, name))
		}
	}

	res.Markdown = strings.Join(sections, "\n\n")
	return res, nil
}

func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract text: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// extractImage returns nil, nil for XObjects that are not images.
func extractImage(v pdf.Value, name string) (img *Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%s: %v", name, r)
		}
	}()

	if v.Key("Subtype").Name() != "Image" {
		return nil, nil
	}
	w := int(v.Key("Width").Int64())
	h := int(v.Key("Height").Int64())
	if w <= 0 || h <= 0 || w > maxImageSide || h > maxImageSide {
		return nil, fmt.Errorf("%s: invalid dimensions %dx%d", name, w, h)
	}
	if bpc := v.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("%s: unsupported bits per component %d", name, bpc)
	}

	var channels int
	switch v.Key("ColorSpace").Name() {
	case "DeviceRGB":
		channels = 3
	case "DeviceGray":
		channels = 1
	default:
		return nil, fmt.Errorf("%s: unsupported color space", name)
	}

	rc := v.Reader()
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", name, err)
	}
	if len(raw) < w*h*channels {
		return nil, fmt.Errorf("%s: short image data", name)
	}

	var out bytes.Buffer
	if err := png.Encode(&out, rasterImage(raw, w, h, channels)); err != nil {
		return nil, fmt.Errorf("%s: encode png: %w", name, err)
	}
	return &Image{Name: name, MimeType: "image/png", Data: out.Bytes()}, nil
}

func rasterImage(raw []byte, w, h, channels int) image.Image {
	if channels == 1 {
		g := image.NewGray(image.Rect(0, 0, w, h))
		copy(g.Pix, raw[:w*h])
		return g
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		rgba.Set(i%w, i/w, color.RGBA{R: raw[i*3], G: raw[i*3+1], B: raw[i*3+2], A: 0xff})
	}
	return rgba
}
