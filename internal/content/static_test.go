package content

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/course-engine/internal/models"
)

const promptingCourse = `
id: chatgpt-prompting
title: ChatGPT Prompting
description: Bessere Prompts schreiben
level: starter
position: 2
modules:
  - id: basics
    title: Grundlagen
    lessons:
      - id: structure
        title: Aufbau eines Prompts
        duration: 20
        position: 2
        quiz:
          question: Was gehoert in einen guten Prompt?
          options: [Nur eine Frage, Kontext und Ziel, Moeglichst wenig]
          correct_answer: 1
      - id: intro
        title: Einfuehrung
        duration: 15
        position: 1
        access: paid
        quiz:
          question: Wofuer steht GPT?
          options: [Generative Pre-trained Transformer, General Purpose Tool]
          correct_answer: 0
`

const automationCourse = `
title: Automatisierung
level: advanced
access: paid
position: 1
modules:
  - id: first
    lessons:
      - id: a
        title: ""
`

func TestStaticSourceLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"prompting.yaml":        {Data: []byte(promptingCourse)},
		"nested/automation.yml": {Data: []byte(automationCourse)},
		"broken.yaml":           {Data: []byte("id: [unterminated")},
		"no-modules.yaml":       {Data: []byte("id: empty\ntitle: Empty\n")},
		"README.md":             {Data: []byte("# not a course")},
	}

	courses, err := NewStaticSource(fsys).LoadCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)

	// position orders the catalog
	automation := courses[0]
	assert.Equal(t, "automation", automation.ID, "id falls back to file name")
	assert.Equal(t, models.LevelAdvanced, automation.Level)
	assert.Equal(t, models.AccessPaid, automation.Access)
	assert.Equal(t, PlaceholderTitle, automation.Modules[0].Title)
	assert.Equal(t, PlaceholderTitle, automation.Modules[0].Lessons[0].Title)
	assert.Equal(t, models.AccessPaid, automation.Modules[0].Lessons[0].Access, "lessons inherit course access")

	prompting := courses[1]
	assert.Equal(t, "chatgpt-prompting", prompting.ID)
	lessons := prompting.Modules[0].Lessons
	require.Len(t, lessons, 2)
	assert.Equal(t, "intro", lessons[0].ID, "lessons sorted by position")
	assert.Equal(t, "structure", lessons[1].ID)
	assert.Equal(t, models.AccessPaid, lessons[0].Access)
	require.NotNil(t, lessons[1].Quiz)
	assert.Equal(t, 1, lessons[1].Quiz.CorrectAnswer)
	assert.Equal(t, 35, lessons[0].DurationMinutes+lessons[1].DurationMinutes)
}

func TestStaticSourceRejectsInvalidQuiz(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.yaml": {Data: []byte(`
id: bad
modules:
  - id: m
    lessons:
      - id: l
        quiz:
          question: q
          options: [a, b]
          correct_answer: 5
`)},
	}

	_, err := NewStaticSource(fsys).LoadCatalog(context.Background())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestStaticSourceEmpty(t *testing.T) {
	_, err := NewStaticSource(fstest.MapFS{}).LoadCatalog(context.Background())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestStaticSourceDuplicateLessonIDs(t *testing.T) {
	fsys := fstest.MapFS{
		"dup.yaml": {Data: []byte(`
id: dup
modules:
  - id: m1
    lessons:
      - id: intro
  - id: m2
    lessons:
      - id: intro
`)},
	}

	courses, err := NewStaticSource(fsys).LoadCatalog(context.Background())
	require.NoError(t, err, "lesson ids only need to be unique within a module")
	require.Len(t, courses[0].Modules, 2)
}

func TestBundledCatalog(t *testing.T) {
	courses, err := NewStaticSourceDir("../../catalog").LoadCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)

	assert.Equal(t, "chatgpt-prompting", courses[0].ID)
	assert.Equal(t, models.AccessFree, courses[0].Modules[0].Lessons[0].Access)
	assert.Equal(t, models.AccessPaid, courses[0].Modules[1].Lessons[0].Access)
	assert.Equal(t, models.AccessPaid, courses[1].Access)
	for _, c := range courses {
		for _, m := range c.Modules {
			for _, l := range m.Lessons {
				assert.NotNil(t, l.Quiz, l.ID)
			}
		}
	}
}
