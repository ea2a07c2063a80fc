// Package certificate renders completion certificates as PDF documents and
// PNG share images.
package certificate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/theme"
)

// ErrRender is returned when a document could not be produced in full
var ErrRender = errors.New("certificate render failed")

const (
	ContentTypePDF = "application/pdf"
	ContentTypePNG = "image/png"

	dateLayout          = "02.01.2006"
	maxDescriptionLines = 3
	ellipsis            = "..."
)

// serialNamespace scopes certificate serials
var serialNamespace = uuid.MustParse("6f1c0d2e-8a4b-5c3d-9e7f-2b1a0c9d8e7f")

// Document is a rendered certificate
type Document struct {
	Filename    string
	ContentType string
	Serial      string
	Data        []byte
}

// Serial returns the certificate number of a user and course. It is stable,
// so re-downloads print the same number.
func Serial(userID, courseID string) string {
	return uuid.NewSHA1(serialNamespace, []byte(userID+"/"+courseID)).String()
}

// Emitter renders certificates with the configured branding
type Emitter struct {
	branding theme.Branding
	accent   [3]uint8
}

// NewEmitter creates an emitter for a theme
func NewEmitter(cfg theme.Config) *Emitter {
	e := &Emitter{branding: cfg.Branding, accent: [3]uint8{79, 70, 229}}
	if r, g, b, ok := theme.RGB(cfg.Colors.Primary); ok {
		e.accent = [3]uint8{r, g, b}
	}
	return e
}

// content is the text printed on both renderings
type content struct {
	recipient   string
	title       string
	description string
	duration    string
	counts      string
	completed   string
	serial      string
	footer      string
}

func (e *Emitter) content(course models.CourseView, identity models.Identity, date time.Time) content {
	issuer := e.branding.Issuer
	if issuer == "" {
		issuer = e.branding.Title
	}
	return content{
		recipient:   identity.DisplayName(),
		title:       course.Title,
		description: strings.Join(strings.Fields(course.Description), " "),
		duration:    fmt.Sprintf("Kursdauer: %d Minuten", course.TotalDurationMinutes),
		counts:      fmt.Sprintf("%d Abschnitte mit insgesamt %d Lektionen", len(course.Modules), course.TotalLessons),
		completed:   "Abgeschlossen am " + date.Format(dateLayout),
		serial:      Serial(identity.ID, course.ID),
		footer:      "Ein Zertifikat der " + issuer,
	}
}

var unsafeFilename = regexp.MustCompile(`[^a-z0-9]+`)

// Filename returns the download name for a course certificate
func Filename(courseTitle, ext string) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(courseTitle), "-"), "-")
	if slug == "" {
		slug = "kurs"
	}
	return "Zertifikat-" + slug + "." + ext
}

// wrap splits text into at most maxLines lines no wider than width. When
// text does not fit, the last line ends with an ellipsis.
func wrap(text string, width float64, maxLines int, measure func(string) float64) []string {
	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if current == "" || measure(candidate) <= width {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] = truncate(lines[maxLines-1], width, measure)
	}
	return lines
}

func truncate(line string, width float64, measure func(string) float64) string {
	runes := []rune(line)
	for len(runes) > 0 && measure(string(runes)+ellipsis) > width {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRight(string(runes), " ") + ellipsis
}

// fitSize returns the largest font size between max and min at which text
// fits width
func fitSize(text string, width, max, min float64, measure func(text string, size float64) float64) (float64, bool) {
	for size := max; size >= min; size -= 1 {
		if measure(text, size) <= width {
			return size, true
		}
	}
	return 0, false
}
