package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelStarter, false},
		{"Starter", LevelStarter, false},
		{" advanced ", LevelAdvanced, false},
		{"professional", LevelProfessional, false},
		{"expert", LevelStarter, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, LevelStarter.Less(LevelProfessional))
	assert.Equal(t, "level(7)", Level(7).String())
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(Lesson{ID: "l1", Level: LevelAdvanced})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"advanced"`)

	var lesson Lesson
	require.NoError(t, json.Unmarshal([]byte(`{"id":"l1","level":"professional"}`), &lesson))
	assert.Equal(t, LevelProfessional, lesson.Level)
}

func TestQuiz(t *testing.T) {
	q := &Quiz{Question: "?", Options: []string{"a", "b"}, CorrectAnswer: 1}
	require.NoError(t, q.Validate())
	assert.True(t, q.Evaluate(1))
	assert.False(t, q.Evaluate(0))

	var nilQuiz *Quiz
	assert.False(t, nilQuiz.Evaluate(0))

	assert.Error(t, (&Quiz{Question: "?", Options: []string{"a"}}).Validate())
	assert.Error(t, (&Quiz{Question: "?", Options: []string{"a", "b"}, CorrectAnswer: 2}).Validate())
	assert.Error(t, (&Quiz{Options: []string{"a", "b"}}).Validate())
}

func TestCourseLookup(t *testing.T) {
	c := &Course{Modules: []Module{
		{ID: "m1", Lessons: []Lesson{{ID: "intro"}, {ID: "l2"}}},
		{ID: "m2", Lessons: []Lesson{{ID: "intro"}}},
	}}

	assert.Equal(t, 3, c.LessonCount())

	m, l := c.FindLesson("m2", "intro")
	require.NotNil(t, l)
	assert.Equal(t, "m2", m.ID)

	m, l = c.FindLesson("m2", "l2")
	assert.NotNil(t, m)
	assert.Nil(t, l)

	m, l = c.FindLesson("m9", "intro")
	assert.Nil(t, m)
	assert.Nil(t, l)
}

func TestAccessCodes(t *testing.T) {
	code, err := GenerateAccessCode()
	require.NoError(t, err)
	assert.Len(t, code, AccessCodeLength)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, code)

	assert.Equal(t, "AB12CD34", NormalizeAccessCode("  ab12cd34 "))

	path := &LearningPath{LessonIDs: []string{"c1/m1/l1", "c1/m1/l2"}}
	assert.True(t, path.Includes(LessonKey{CourseID: "c1", ModuleID: "m1", LessonID: "l2"}))
	assert.False(t, path.Includes(LessonKey{CourseID: "c1", ModuleID: "m1", LessonID: "l3"}))
	assert.False(t, path.Includes(LessonKey{CourseID: "c2", ModuleID: "m1", LessonID: "l2"}))
	assert.False(t, path.Includes(LessonKey{CourseID: "c1", ModuleID: "m2", LessonID: "l2"}))
}

func TestParseLessonKey(t *testing.T) {
	key, err := ParseLessonKey(" c1/m1/intro ")
	require.NoError(t, err)
	assert.Equal(t, LessonKey{CourseID: "c1", ModuleID: "m1", LessonID: "intro"}, key)
	assert.Equal(t, "c1/m1/intro", key.String())

	for _, ref := range []string{"intro", "c1/intro", "c1//intro", "c1/m1/l1/x", ""} {
		_, err := ParseLessonKey(ref)
		assert.Error(t, err, ref)
	}
}

func TestIdentityAndProgress(t *testing.T) {
	var anonymous *Identity
	assert.False(t, anonymous.HasRole(RoleAdmin))

	id := &Identity{ID: "u1", Roles: []string{RolePremium}}
	assert.True(t, id.HasRole(RolePremium))
	assert.Equal(t, "u1", id.DisplayName())
	id.Email = "a@example.com"
	assert.Equal(t, "a@example.com", id.DisplayName())

	var rec *CourseProgressRecord
	assert.False(t, rec.IsCompleted())
	now := time.Now()
	rec = &CourseProgressRecord{CompletedAt: &now}
	assert.True(t, rec.IsCompleted())

	p := ProgressRecord{CourseID: "c", ModuleID: "m", LessonID: "l"}
	assert.Equal(t, LessonKey{CourseID: "c", ModuleID: "m", LessonID: "l"}, p.Key())
}
