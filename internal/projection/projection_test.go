package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/course-engine/internal/models"
)

func sampleCatalog() []models.Course {
	return []models.Course{
		{
			ID:    "c1",
			Title: "ChatGPT Prompting",
			Modules: []models.Module{
				{
					ID: "m1",
					Lessons: []models.Lesson{
						{ID: "l1", DurationMinutes: 10, Quiz: &models.Quiz{Question: "q", Options: []string{"a", "b"}, CorrectAnswer: 1}},
						{ID: "l2", DurationMinutes: 5, Access: models.AccessPaid, Content: "secret"},
					},
				},
				{
					ID: "m2",
					Lessons: []models.Lesson{
						// same lesson id as in m1, distinct lesson
						{ID: "l1", DurationMinutes: 15},
					},
				},
			},
		},
		{ID: "empty", Title: "Empty"},
	}
}

func rec(course, module, lesson string) models.ProgressRecord {
	return models.ProgressRecord{UserID: "u", CourseID: course, ModuleID: module, LessonID: lesson}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 0.0, Percent(3, 0))
	assert.Equal(t, 50.0, Percent(1, 2))
	assert.Equal(t, 100.0, Percent(2, 2))
}

func TestProjectEmptyCourse(t *testing.T) {
	views := Project(sampleCatalog(), nil)
	require.Len(t, views, 2)

	empty := views[1]
	assert.Equal(t, 0, empty.TotalLessons)
	assert.Equal(t, 0.0, empty.Progress)
	assert.False(t, math.IsNaN(empty.Progress))
	assert.False(t, IsComplete(empty))
}

func TestProjectMatchesModuleAndLesson(t *testing.T) {
	progress := []models.ProgressRecord{
		rec("c1", "m1", "l1"),
		rec("other", "m2", "l1"),
	}
	view := Project(sampleCatalog(), progress)[0]

	assert.True(t, view.Modules[0].Lessons[0].Completed)
	assert.False(t, view.Modules[1].Lessons[0].Completed)
	assert.Equal(t, 1, view.CompletedLessons)
	assert.Equal(t, 3, view.TotalLessons)
	assert.Equal(t, 30, view.TotalDurationMinutes)
	assert.Equal(t, 50.0, view.Modules[0].Progress)
	assert.Equal(t, 0.0, view.Modules[1].Progress)
	assert.InDelta(t, 33.33, view.Progress, 0.01)
}

func TestProjectIdempotent(t *testing.T) {
	catalog := sampleCatalog()
	progress := []models.ProgressRecord{rec("c1", "m1", "l1")}

	first := Project(catalog, progress)
	second := Project(catalog, progress)
	assert.Equal(t, first, second)
	assert.True(t, second[0].Modules[0].Lessons[0].Completed)

	// input untouched
	assert.Equal(t, sampleCatalog(), catalog)
}

func TestProjectHidesAnswer(t *testing.T) {
	view := ProjectCourse(sampleCatalog()[0], nil)
	quiz := view.Modules[0].Lessons[0].Quiz
	require.NotNil(t, quiz)
	assert.Equal(t, "q", quiz.Question)
	assert.Equal(t, []string{"a", "b"}, quiz.Options)
}

func TestIsComplete(t *testing.T) {
	all := []models.ProgressRecord{rec("c1", "m1", "l1"), rec("c1", "m1", "l2"), rec("c1", "m2", "l1")}
	assert.True(t, IsComplete(ProjectCourse(sampleCatalog()[0], all)))
	assert.False(t, IsComplete(ProjectCourse(sampleCatalog()[0], all[:2])))
}

func TestApplyAccess(t *testing.T) {
	view := ProjectCourse(sampleCatalog()[0], nil)
	ApplyAccess(&view, nil)
	paid := view.Modules[0].Lessons[1]
	assert.True(t, paid.Locked)
	assert.Empty(t, paid.Content)
	assert.False(t, view.Modules[0].Lessons[0].Locked)

	view = ProjectCourse(sampleCatalog()[0], nil)
	ApplyAccess(&view, func(key models.LessonKey) bool { return key.String() == "c1/m1/l2" })
	assert.False(t, view.Modules[0].Lessons[1].Locked)
	assert.Equal(t, "secret", view.Modules[0].Lessons[1].Content)

	// a grant for the same lesson id elsewhere does not open this one
	view = ProjectCourse(sampleCatalog()[0], nil)
	ApplyAccess(&view, func(key models.LessonKey) bool {
		return key == models.LessonKey{CourseID: "other", ModuleID: "m1", LessonID: "l2"} ||
			key == models.LessonKey{CourseID: "c1", ModuleID: "m2", LessonID: "l2"}
	})
	assert.True(t, view.Modules[0].Lessons[1].Locked)
	assert.Empty(t, view.Modules[0].Lessons[1].Content)
}

func TestLessonView(t *testing.T) {
	view := ProjectCourse(sampleCatalog()[0], []models.ProgressRecord{rec("c1", "m2", "l1")})

	lesson, ok := LessonView(view, "m2", "l1")
	require.True(t, ok)
	assert.True(t, lesson.Completed)

	_, ok = LessonView(view, "m3", "l1")
	assert.False(t, ok)
}
