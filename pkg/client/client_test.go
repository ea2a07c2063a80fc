package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/course-engine/internal/models"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": status < 300, "data": data})
}

func TestSubmitQuiz(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/courses/c1/modules/m1/lessons/l1/quiz/submit", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 1, body["selected_index"])

		writeEnvelope(w, http.StatusAccepted, map[string]interface{}{
			"state":           "completed",
			"pending_sync":    true,
			"course_progress": 50,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithHTTPClient(srv.Client()))
	result, err := c.SubmitQuiz(context.Background(), models.LessonKey{CourseID: "c1", ModuleID: "m1", LessonID: "l1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.State)
	assert.True(t, result.PendingSync)
	assert.Equal(t, 50.0, result.CourseProgress)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":{"code":"auth_required","message":"sign in"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.StartCourse(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, IsAuthRequired(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestListCoursesAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			writeEnvelope(w, http.StatusOK, map[string]string{"status": "healthy"})
		case "/api/v1/courses":
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"courses": []map[string]interface{}{{"id": "c1", "title": "Kurs", "level": "advanced", "progress": 25}},
				"total":   1,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "")
	require.NoError(t, c.Health(context.Background()))

	courses, err := c.ListCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, models.LevelAdvanced, courses[0].Level)
	assert.Equal(t, 25.0, courses[0].Progress)
}

func TestDownloadCertificate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "png", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", `attachment; filename="Zertifikat-kurs.png"`)
		w.Write([]byte("\x89PNG"))
	}))
	defer srv.Close()

	cert, err := NewClient(srv.URL, "tok").DownloadCertificate(context.Background(), "c1", "png")
	require.NoError(t, err)
	assert.Equal(t, "Zertifikat-kurs.png", cert.Filename)
	assert.Equal(t, "image/png", cert.ContentType)
	assert.Equal(t, []byte("\x89PNG"), cert.Data)
}
