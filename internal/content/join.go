package content

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/terra-clan/course-engine/internal/models"
)

// Payload is the full-base response of the tabular store
type Payload struct {
	Tables []Table `json:"tables"`
	Links  []Link  `json:"links"`
}

// Table is one row set. Rows are keyed by column key; "_id" is the row id.
type Table struct {
	ID   string           `json:"_id"`
	Name string           `json:"name"`
	Rows []map[string]any `json:"rows"`
}

// Link joins rows of two tables in both directions
type Link struct {
	ID        string              `json:"_id"`
	Table1ID  string              `json:"table1_id"`
	Table2ID  string              `json:"table2_id"`
	Table1To2 map[string][]string `json:"table1_table2_map"`
	Table2To1 map[string][]string `json:"table2_table1_map"`
}

// children returns the row ids linked from parentRow of parentTable
func (l *Link) children(parentTable, parentRow string) []string {
	switch parentTable {
	case l.Table1ID:
		return l.Table1To2[parentRow]
	case l.Table2ID:
		return l.Table2To1[parentRow]
	}
	return nil
}

func (l *Link) joins(a, b string) bool {
	return (l.Table1ID == a && l.Table2ID == b) || (l.Table1ID == b && l.Table2ID == a)
}

type rowIndex map[string]map[string]any

// BuildCatalog joins the course, module and lesson row sets into a course tree.
// Unrelated tables and links are ignored. Rows with sentinel ids or
// sentinel parent references are dropped.
func BuildCatalog(p Payload, s Schema) ([]models.Course, error) {
	tables := make(map[string]*Table, len(p.Tables))
	for i := range p.Tables {
		tables[p.Tables[i].ID] = &p.Tables[i]
	}
	links := make(map[string]*Link, len(p.Links))
	for i := range p.Links {
		links[p.Links[i].ID] = &p.Links[i]
	}

	courseTable, ok := tables[s.CourseTable]
	if !ok {
		return nil, fmt.Errorf("%w: course table %q not found", ErrSchemaMismatch, s.CourseTable)
	}
	moduleTable, ok := tables[s.ModuleTable]
	if !ok {
		return nil, fmt.Errorf("%w: module table %q not found", ErrSchemaMismatch, s.ModuleTable)
	}
	lessonTable, ok := tables[s.LessonTable]
	if !ok {
		return nil, fmt.Errorf("%w: lesson table %q not found", ErrSchemaMismatch, s.LessonTable)
	}

	courseModules, ok := links[s.CourseModuleLink]
	if !ok || !courseModules.joins(s.CourseTable, s.ModuleTable) {
		return nil, fmt.Errorf("%w: course-module link %q not found", ErrSchemaMismatch, s.CourseModuleLink)
	}
	moduleLessons, ok := links[s.ModuleLessonLink]
	if !ok || !moduleLessons.joins(s.ModuleTable, s.LessonTable) {
		return nil, fmt.Errorf("%w: module-lesson link %q not found", ErrSchemaMismatch, s.ModuleLessonLink)
	}

	moduleRows := indexRows(moduleTable.Rows)
	lessonRows := indexRows(lessonTable.Rows)

	courses := make([]models.Course, 0, len(courseTable.Rows))
	seenCourses := make(map[string]bool)

	for _, row := range courseTable.Rows {
		rowID := stringValue(row["_id"])
		courseID, ok := publicID(row, s.Course.ID, rowID)
		if !ok {
			continue
		}
		if seenCourses[courseID] {
			slog.Warn("duplicate course id in tabular source", "id", courseID)
			continue
		}
		seenCourses[courseID] = true

		course := models.Course{
			ID:          courseID,
			Title:       titleOrPlaceholder(stringValue(row[s.Course.Title])),
			Description: stringValue(row[s.Course.Description]),
			Image:       firstString(row[s.Course.Images]),
			Level:       s.level(stringValue(row[s.Course.Level])),
			Access:      s.access(stringValue(row[s.Course.Access])),
			Modules:     []models.Module{},
		}

		seenModules := make(map[string]bool)
		for _, moduleRowID := range courseModules.children(s.CourseTable, rowID) {
			if isSentinel(moduleRowID) {
				continue
			}
			mrow, ok := moduleRows[moduleRowID]
			if !ok {
				continue
			}
			module, ok := buildModule(mrow, moduleRowID, s, moduleLessons, lessonRows)
			if !ok || seenModules[module.ID] {
				continue
			}
			seenModules[module.ID] = true
			course.Modules = append(course.Modules, module)
		}

		sortModules(course.Modules)
		courses = append(courses, course)
	}

	return courses, nil
}

func buildModule(row map[string]any, rowID string, s Schema, link *Link, lessonRows rowIndex) (models.Module, bool) {
	moduleID, ok := publicID(row, s.Module.ID, rowID)
	if !ok {
		return models.Module{}, false
	}

	module := models.Module{
		ID:          moduleID,
		Title:       titleOrPlaceholder(stringValue(row[s.Module.Title])),
		Description: stringValue(row[s.Module.Description]),
		Position:    intValue(row[s.Module.Position]),
		Lessons:     []models.Lesson{},
	}

	seen := make(map[string]bool)
	for _, lessonRowID := range link.children(s.ModuleTable, rowID) {
		if isSentinel(lessonRowID) {
			continue
		}
		lrow, ok := lessonRows[lessonRowID]
		if !ok {
			continue
		}
		if s.Lesson.ModuleRef != "" {
			if ref, present := lrow[s.Lesson.ModuleRef]; present && isSentinel(ref) {
				continue
			}
		}
		lesson, ok := buildLesson(lrow, lessonRowID, s)
		if !ok || seen[lesson.ID] {
			continue
		}
		seen[lesson.ID] = true
		module.Lessons = append(module.Lessons, lesson)
	}
	return module, true
}

func buildLesson(row map[string]any, rowID string, s Schema) (models.Lesson, bool) {
	lessonID, ok := publicID(row, s.Lesson.ID, rowID)
	if !ok {
		return models.Lesson{}, false
	}

	lesson := models.Lesson{
		ID:              lessonID,
		Title:           titleOrPlaceholder(stringValue(row[s.Lesson.Title])),
		Description:     stringValue(row[s.Lesson.Description]),
		Content:         stringValue(row[s.Lesson.Content]),
		DurationMinutes: intValue(row[s.Lesson.Duration]),
		Image:           firstString(row[s.Lesson.Images]),
		Level:           s.level(stringValue(row[s.Lesson.Level])),
		Access:          s.access(stringValue(row[s.Lesson.Access])),
		Position:        intValue(row[s.Lesson.Position]),
	}

	if s.Lesson.QuizQuestion != "" {
		quiz := &models.Quiz{
			Question:      stringValue(row[s.Lesson.QuizQuestion]),
			Options:       stringList(row[s.Lesson.QuizOptions]),
			CorrectAnswer: intValue(row[s.Lesson.QuizAnswer]),
		}
		if err := quiz.Validate(); err == nil {
			lesson.Quiz = quiz
		} else if quiz.Question != "" {
			slog.Warn("ignoring invalid quiz", "lesson_id", lessonID, "error", err)
		}
	}
	return lesson, true
}

func indexRows(rows []map[string]any) rowIndex {
	idx := make(rowIndex, len(rows))
	for _, row := range rows {
		id := stringValue(row["_id"])
		if id == "" {
			continue
		}
		idx[id] = row
	}
	return idx
}

// publicID prefers the id column and falls back to the row id when the column
// is absent. A present but sentinel id drops the row.
func publicID(row map[string]any, column, rowID string) (string, bool) {
	if column != "" {
		if v, present := row[column]; present {
			if isSentinel(v) {
				return "", false
			}
			return stringValue(v), true
		}
	}
	if isSentinel(rowID) {
		return "", false
	}
	return rowID, true
}

// isSentinel reports the upstream "unset" markers: nil, "", "0" and 0
func isSentinel(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || s == "0"
	case float64:
		return t == 0
	case int:
		return t == 0
	case json.Number:
		return t.String() == "0"
	}
	return false
}

// stringValue accepts plain values and rich-text cells of the form {"text": ...}
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		return stringValue(t["text"])
	case []any:
		if len(t) > 0 {
			return stringValue(t[0])
		}
	}
	return ""
}

func intValue(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return int(f)
		}
	}
	return 0
}

// stringList coerces null, a single string, a newline separated string or an
// array into a slice. Null yields an empty slice.
func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		out := []string{}
		for _, line := range strings.Split(t, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	return []string{}
}

func firstString(v any) string {
	list := stringList(v)
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
