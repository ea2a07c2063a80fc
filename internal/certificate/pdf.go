package certificate

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/terra-clan/course-engine/internal/models"
)

const (
	pageMargin   = 10.0
	textWidth    = 257.0
	descWidth    = 200.0
	fontFamily   = "Helvetica"
	titleMaxSize = 24.0
	titleMinSize = 14.0
	nameMaxSize  = 20.0
	nameMinSize  = 12.0
)

// Emit renders the A4 landscape PDF certificate. Nothing is returned unless
// the whole document was written.
func (e *Emitter) Emit(course models.CourseView, identity models.Identity, date time.Time) (*Document, error) {
	c := e.content(course, identity, date)

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(date)
	pdf.SetTitle("Zertifikat "+c.title, true)
	pdf.SetAuthor(e.branding.Title, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	width, height := pdf.GetPageSize()
	measure := func(text string, size float64) float64 {
		pdf.SetFontSize(size)
		return pdf.GetStringWidth(tr(text))
	}
	centered := func(y, size float64, style, text string) {
		pdf.SetFont(fontFamily, style, size)
		pdf.SetXY(pageMargin, y)
		pdf.CellFormat(width-2*pageMargin, size*0.45, tr(text), "", 0, "C", false, 0, "")
	}

	e.drawFrame(pdf, width, height)

	pdf.SetTextColor(102, 102, 102)
	centered(42, 40, "", "Zertifikat")
	centered(65, 16, "", "Hiermit wird bestätigt, dass")

	pdf.SetFont(fontFamily, "B", nameMaxSize)
	nameSize, ok := fitSize(c.recipient, textWidth, nameMaxSize, nameMinSize, measure)
	if !ok {
		return nil, fmt.Errorf("%w: recipient does not fit the page", ErrRender)
	}
	pdf.SetTextColor(17, 24, 39)
	centered(80, nameSize, "B", c.recipient)

	pdf.SetTextColor(102, 102, 102)
	centered(95, 16, "", "erfolgreich den Kurs")

	pdf.SetFont(fontFamily, "B", titleMaxSize)
	titleSize, ok := fitSize(c.title, textWidth, titleMaxSize, titleMinSize, measure)
	if !ok {
		return nil, fmt.Errorf("%w: course title does not fit the page", ErrRender)
	}
	pdf.SetTextColor(int(e.accent[0]), int(e.accent[1]), int(e.accent[2]))
	centered(108, titleSize, "B", c.title)

	pdf.SetTextColor(102, 102, 102)
	pdf.SetFont(fontFamily, "", 12)
	lines := wrap(c.description, descWidth, maxDescriptionLines, func(s string) float64 {
		return pdf.GetStringWidth(tr(s))
	})
	y := 122.0
	for _, line := range lines {
		centered(y, 12, "", line)
		y += 6
	}

	centered(145, 14, "", c.duration)
	centered(153, 14, "", c.counts)
	centered(166, 14, "", c.completed)
	centered(height-20, 10, "", c.footer)
	centered(height-14, 8, "", "Zertifikat-Nr. "+c.serial)

	if pdf.Err() {
		return nil, fmt.Errorf("%w: %v", ErrRender, pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	slog.Info("rendered certificate",
		"course_id", course.ID,
		"user_id", identity.ID,
		"format", "pdf",
		"bytes", buf.Len(),
	)

	return &Document{
		Filename:    Filename(course.Title, "pdf"),
		ContentType: ContentTypePDF,
		Serial:      c.serial,
		Data:        buf.Bytes(),
	}, nil
}

func (e *Emitter) drawFrame(pdf *fpdf.Fpdf, width, height float64) {
	pdf.SetFillColor(249, 250, 251)
	pdf.Rect(0, 0, width, height, "F")

	pdf.SetDrawColor(102, 102, 102)
	pdf.SetLineWidth(1)
	pdf.Rect(pageMargin, pageMargin, width-2*pageMargin, height-2*pageMargin, "D")

	pdf.SetLineWidth(0.5)
	corners := [][4]float64{
		{10, 20, 30, 20}, {20, 10, 20, 30},
		{width - 30, 20, width - 10, 20}, {width - 20, 10, width - 20, 30},
		{10, height - 20, 30, height - 20}, {20, height - 30, 20, height - 10},
		{width - 30, height - 20, width - 10, height - 20}, {width - 20, height - 30, width - 20, height - 10},
	}
	for _, l := range corners {
		pdf.Line(l[0], l[1], l[2], l[3])
	}

	pdf.SetDrawColor(int(e.accent[0]), int(e.accent[1]), int(e.accent[2]))
	pdf.SetLineWidth(1.5)
	pdf.Line(40, 32, width-40, 32)
	pdf.Line(40, height-32, width-40, height-32)
}
