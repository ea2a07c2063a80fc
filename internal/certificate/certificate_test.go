package certificate

import (
	"bytes"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/theme"
)

func sampleView() models.CourseView {
	return models.CourseView{
		ID:          "c1",
		Title:       "ChatGPT Prompting für Einsteiger",
		Description: "Lernen Sie, wie Sie mit klaren Anweisungen bessere Antworten erhalten.",
		Modules: []models.ModuleView{
			{ID: "m1", TotalLessons: 2, CompletedLessons: 2},
		},
		CompletedLessons:     2,
		TotalLessons:         2,
		TotalDurationMinutes: 25,
		Progress:             100,
	}
}

var (
	recipient = models.Identity{ID: "user-1", Email: "anna@example.com"}
	issued    = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
)

func TestEmitPDF(t *testing.T) {
	doc, err := NewEmitter(theme.Default()).Emit(sampleView(), recipient, issued)
	require.NoError(t, err)

	assert.Equal(t, ContentTypePDF, doc.ContentType)
	assert.Equal(t, "Zertifikat-chatgpt-prompting-f-r-einsteiger.pdf", doc.Filename)
	require.NotEmpty(t, doc.Data)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))
}

func TestEmitPDFWithoutEmail(t *testing.T) {
	doc, err := NewEmitter(theme.Default()).Emit(sampleView(), models.Identity{ID: "user-1"}, issued)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Data)
}

func TestEmitOverflow(t *testing.T) {
	e := NewEmitter(theme.Default())

	view := sampleView()
	view.Title = strings.Repeat("Sehr langer Kurstitel ", 20)
	doc, err := e.Emit(view, recipient, issued)
	assert.True(t, errors.Is(err, ErrRender))
	assert.Nil(t, doc)

	longName := models.Identity{ID: "u", Email: strings.Repeat("a", 200) + "@example.com"}
	doc, err = e.Emit(sampleView(), longName, issued)
	assert.ErrorIs(t, err, ErrRender)
	assert.Nil(t, doc)

	_, err = e.EmitPNG(sampleView(), longName, issued)
	assert.ErrorIs(t, err, ErrRender)
}

func TestEmitPNG(t *testing.T) {
	doc, err := NewEmitter(theme.Default()).EmitPNG(sampleView(), recipient, issued)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePNG, doc.ContentType)

	img, err := png.Decode(bytes.NewReader(doc.Data))
	require.NoError(t, err)
	assert.Equal(t, imageWidth, img.Bounds().Dx())
	assert.Equal(t, imageHeight, img.Bounds().Dy())
}

func TestWrapEllipsis(t *testing.T) {
	measure := func(s string) float64 { return float64(len(s)) }

	lines := wrap("one two three four five six seven eight nine ten", 10, 3, measure)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[2], ellipsis))
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), 10)
	}

	assert.Equal(t, []string{"short"}, wrap("short", 10, 3, measure))
	assert.Empty(t, wrap("   ", 10, 3, measure))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Zertifikat-kurs.pdf", Filename("!!!", "pdf"))
	assert.Equal(t, "Zertifikat-go-basics.png", Filename("Go Basics", "png"))
}

func TestSerial(t *testing.T) {
	a := Serial("user-1", "c1")
	assert.Equal(t, a, Serial("user-1", "c1"))
	assert.NotEqual(t, a, Serial("user-2", "c1"))
	assert.NotEqual(t, a, Serial("user-1", "c2"))
	assert.Len(t, a, 36)

	doc, err := NewEmitter(theme.Default()).Emit(sampleView(), recipient, issued)
	require.NoError(t, err)
	assert.Equal(t, Serial(recipient.ID, "c1"), doc.Serial)
}
