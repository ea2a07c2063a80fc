package certificate

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/terra-clan/course-engine/internal/models"
)

// Share image size, A4 landscape at 150 dpi
const (
	imageWidth  = 1754
	imageHeight = 1240
	imageText   = 1500.0
	imageDesc   = 1180.0
)

var (
	fontsOnce sync.Once
	fontsErr  error
	regular   *truetype.Font
	bold      *truetype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		regular, fontsErr = truetype.Parse(goregular.TTF)
		if fontsErr != nil {
			return
		}
		bold, fontsErr = truetype.Parse(gobold.TTF)
	})
	return fontsErr
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// EmitPNG renders a raster preview of the certificate
func (e *Emitter) EmitPNG(course models.CourseView, identity models.Identity, date time.Time) (*Document, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("%w: failed to load fonts: %v", ErrRender, err)
	}
	c := e.content(course, identity, date)

	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetRGB255(249, 250, 251)
	dc.Clear()

	dc.SetRGB255(102, 102, 102)
	dc.SetLineWidth(6)
	dc.DrawRectangle(60, 60, imageWidth-120, imageHeight-120)
	dc.Stroke()

	dc.SetRGB255(int(e.accent[0]), int(e.accent[1]), int(e.accent[2]))
	dc.SetLineWidth(9)
	dc.DrawLine(240, 190, imageWidth-240, 190)
	dc.DrawLine(240, imageHeight-190, imageWidth-240, imageHeight-190)
	dc.Stroke()

	measure := func(f *truetype.Font) func(string, float64) float64 {
		return func(text string, size float64) float64 {
			dc.SetFontFace(face(f, size))
			w, _ := dc.MeasureString(text)
			return w
		}
	}
	centered := func(y float64, f *truetype.Font, size float64, text string) {
		dc.SetFontFace(face(f, size))
		dc.DrawStringAnchored(text, imageWidth/2, y, 0.5, 0.5)
	}

	nameSize, ok := fitSize(c.recipient, imageText, 100, 60, measure(bold))
	if !ok {
		return nil, fmt.Errorf("%w: recipient does not fit the image", ErrRender)
	}
	titleSize, ok := fitSize(c.title, imageText, 120, 70, measure(bold))
	if !ok {
		return nil, fmt.Errorf("%w: course title does not fit the image", ErrRender)
	}

	dc.SetRGB255(102, 102, 102)
	centered(280, regular, 200, "Zertifikat")
	centered(400, regular, 80, "Hiermit wird bestätigt, dass")

	dc.SetRGB255(17, 24, 39)
	centered(490, bold, nameSize, c.recipient)

	dc.SetRGB255(102, 102, 102)
	centered(580, regular, 80, "erfolgreich den Kurs")

	dc.SetRGB255(int(e.accent[0]), int(e.accent[1]), int(e.accent[2]))
	centered(670, bold, titleSize, c.title)

	dc.SetRGB255(102, 102, 102)
	dc.SetFontFace(face(regular, 60))
	lines := wrap(c.description, imageDesc, maxDescriptionLines, func(s string) float64 {
		w, _ := dc.MeasureString(s)
		return w
	})
	y := 770.0
	for _, line := range lines {
		dc.DrawStringAnchored(line, imageWidth/2, y, 0.5, 0.5)
		y += 70
	}

	centered(900, regular, 60, c.duration+" | "+c.counts)
	centered(970, regular, 60, c.completed)
	centered(imageHeight-125, regular, 50, c.footer)
	centered(imageHeight-82, regular, 30, "Zertifikat-Nr. "+c.serial)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	slog.Info("rendered certificate",
		"course_id", course.ID,
		"user_id", identity.ID,
		"format", "png",
		"bytes", buf.Len(),
	)

	return &Document{
		Filename:    Filename(course.Title, "png"),
		ContentType: ContentTypePNG,
		Serial:      c.serial,
		Data:        buf.Bytes(),
	}, nil
}
