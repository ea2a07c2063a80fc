// Package projection merges the catalog with one user's progress records
// into the course trees clients render. It never mutates its inputs.
package projection

import (
	"github.com/terra-clan/course-engine/internal/models"
)

// Percent returns completed/total as a percentage, or 0 when total is 0
func Percent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) * 100 / float64(total)
}

// Project returns a view of every course with completion applied
func Project(catalog []models.Course, progress []models.ProgressRecord) []models.CourseView {
	done := index(progress)
	views := make([]models.CourseView, 0, len(catalog))
	for i := range catalog {
		views = append(views, project(&catalog[i], done))
	}
	return views
}

// ProjectCourse projects a single course
func ProjectCourse(course models.Course, progress []models.ProgressRecord) models.CourseView {
	return project(&course, index(progress))
}

// IsComplete reports whether every lesson of a non-empty course is done
func IsComplete(view models.CourseView) bool {
	return view.TotalLessons > 0 && view.CompletedLessons == view.TotalLessons
}

// ApplyAccess locks paid lessons the caller may not open. Grants are matched
// on the full lesson key. Locked lessons lose their content and quiz.
func ApplyAccess(view *models.CourseView, unlocked func(key models.LessonKey) bool) {
	for mi := range view.Modules {
		lessons := view.Modules[mi].Lessons
		for li := range lessons {
			lesson := &lessons[li]
			if !lesson.Access.IsPaid() {
				continue
			}
			key := models.LessonKey{CourseID: view.ID, ModuleID: view.Modules[mi].ID, LessonID: lesson.ID}
			if unlocked != nil && unlocked(key) {
				continue
			}
			lesson.Locked = true
			lesson.Content = ""
			lesson.Quiz = nil
		}
	}
}

// LessonView finds one lesson in a projected course
func LessonView(view models.CourseView, moduleID, lessonID string) (*models.LessonView, bool) {
	for mi := range view.Modules {
		if view.Modules[mi].ID != moduleID {
			continue
		}
		for li := range view.Modules[mi].Lessons {
			if view.Modules[mi].Lessons[li].ID == lessonID {
				lesson := view.Modules[mi].Lessons[li]
				return &lesson, true
			}
		}
	}
	return nil, false
}

func index(progress []models.ProgressRecord) map[models.LessonKey]bool {
	done := make(map[models.LessonKey]bool, len(progress))
	for _, rec := range progress {
		done[rec.Key()] = true
	}
	return done
}

func project(course *models.Course, done map[models.LessonKey]bool) models.CourseView {
	view := models.CourseView{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		Image:       course.Image,
		Level:       course.Level,
		Access:      course.Access,
		Modules:     make([]models.ModuleView, 0, len(course.Modules)),
	}

	for _, module := range course.Modules {
		mv := models.ModuleView{
			ID:          module.ID,
			Title:       module.Title,
			Description: module.Description,
			Position:    module.Position,
			Lessons:     make([]models.LessonView, 0, len(module.Lessons)),
		}

		for _, lesson := range module.Lessons {
			key := models.LessonKey{CourseID: course.ID, ModuleID: module.ID, LessonID: lesson.ID}
			lv := models.LessonView{
				ID:              lesson.ID,
				Title:           lesson.Title,
				Description:     lesson.Description,
				DurationMinutes: lesson.DurationMinutes,
				Content:         lesson.Content,
				Image:           lesson.Image,
				Access:          lesson.Access,
				Level:           lesson.Level,
				Completed:       done[key],
			}
			if lesson.Quiz != nil {
				lv.Quiz = &models.QuizView{
					Question: lesson.Quiz.Question,
					Options:  append([]string(nil), lesson.Quiz.Options...),
				}
			}
			if lv.Completed {
				mv.CompletedLessons++
			}
			mv.TotalLessons++
			view.TotalDurationMinutes += lesson.DurationMinutes
			mv.Lessons = append(mv.Lessons, lv)
		}

		mv.Progress = Percent(mv.CompletedLessons, mv.TotalLessons)
		view.CompletedLessons += mv.CompletedLessons
		view.TotalLessons += mv.TotalLessons
		view.Modules = append(view.Modules, mv)
	}

	view.Progress = Percent(view.CompletedLessons, view.TotalLessons)
	return view
}
