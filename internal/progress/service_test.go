package progress

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/course-engine/internal/auth"
	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/storage"
)

// flakyRepo fails GetCourseProgress with err for the first failures calls
type flakyRepo struct {
	*storage.MemoryRepository
	err      error
	failures int32
	calls    atomic.Int32
}

func (f *flakyRepo) GetCourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgressRecord, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return f.MemoryRepository.GetCourseProgress(ctx, userID, courseID)
}

type failingUpserts struct {
	*storage.MemoryRepository
}

func (f failingUpserts) UpsertLessonProgress(ctx context.Context, rec *models.ProgressRecord) error {
	return errors.New("permission denied for table user_lesson_progress")
}

var user = &models.Identity{ID: "user-1", Email: "user@example.com"}

func noSleep(delays *[]time.Duration) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	})
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestGetLessonProgressAnonymous(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())

	records, err := svc.GetLessonProgress(context.Background(), nil, "course-1")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	courses, err := svc.ListCourseProgress(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestUpsertLessonCompletion(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	key := models.LessonKey{CourseID: "c1", ModuleID: "m1", LessonID: "l1"}

	require.NoError(t, NewService(repo, fixedClock(first)).UpsertLessonCompletion(ctx, user, key))
	require.NoError(t, NewService(repo, fixedClock(first.Add(time.Hour))).UpsertLessonCompletion(ctx, user, key))

	records, err := NewService(repo).GetLessonProgress(ctx, user, "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, key, records[0].Key())
	assert.True(t, records[0].CompletedAt.Equal(first))
	assert.True(t, records[0].LastAccessedAt.Equal(first.Add(time.Hour)))
}

func TestListProgressSpansCourses(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryRepository())
	keys := []models.LessonKey{
		{CourseID: "c1", ModuleID: "m1", LessonID: "l1"},
		{CourseID: "c2", ModuleID: "m1", LessonID: "l1"},
	}
	for _, k := range keys {
		require.NoError(t, svc.UpsertLessonCompletion(ctx, user, k))
	}

	all, err := svc.ListProgress(ctx, user)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := svc.GetLessonProgress(ctx, user, "c2")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, keys[1], one[0].Key())

	anonymous, err := svc.ListProgress(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, anonymous)
}

func TestUpsertLessonCompletionErrors(t *testing.T) {
	ctx := context.Background()
	key := models.LessonKey{CourseID: "c1", ModuleID: "m1", LessonID: "l1"}

	err := NewService(storage.NewMemoryRepository()).UpsertLessonCompletion(ctx, nil, key)
	assert.ErrorIs(t, err, auth.ErrAuthRequired)

	err = NewService(failingUpserts{storage.NewMemoryRepository()}).UpsertLessonCompletion(ctx, user, key)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestStartCourseCreatesThenTouches(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec, err := NewService(repo, fixedClock(start)).StartCourse(ctx, user, "c1")
	require.NoError(t, err)
	assert.True(t, rec.StartedAt.Equal(start))

	later := start.Add(24 * time.Hour)
	rec, err = NewService(repo, fixedClock(later)).StartCourse(ctx, user, "c1")
	require.NoError(t, err)
	assert.True(t, rec.StartedAt.Equal(start))
	assert.True(t, rec.LastAccessedAt.Equal(later))

	all, err := repo.ListCourseProgress(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStartCourseConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	svc := NewService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartCourse(ctx, user, "c1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := repo.ListCourseProgress(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStartCourseRetriesNetworkErrors(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	t.Run("recovers within attempts", func(t *testing.T) {
		repo := &flakyRepo{MemoryRepository: storage.NewMemoryRepository(), err: netErr, failures: 2}
		var delays []time.Duration
		svc := NewService(repo, WithStartRetry(3, 100*time.Millisecond), noSleep(&delays))

		rec, err := svc.StartCourse(context.Background(), user, "c1")
		require.NoError(t, err)
		assert.NotNil(t, rec)
		assert.Equal(t, int32(3), repo.calls.Load())
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		repo := &flakyRepo{MemoryRepository: storage.NewMemoryRepository(), err: netErr, failures: 10}
		svc := NewService(repo, noSleep(nil))

		_, err := svc.StartCourse(context.Background(), user, "c1")
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Equal(t, int32(3), repo.calls.Load())
	})

	t.Run("no retry on other errors", func(t *testing.T) {
		repo := &flakyRepo{
			MemoryRepository: storage.NewMemoryRepository(),
			err:              errors.New("permission denied"),
			failures:         10,
		}
		svc := NewService(repo, noSleep(nil))

		_, err := svc.StartCourse(context.Background(), user, "c1")
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Equal(t, int32(1), repo.calls.Load())
	})
}

func TestStartCourseAnonymous(t *testing.T) {
	_, err := NewService(storage.NewMemoryRepository()).StartCourse(context.Background(), nil, "c1")
	assert.ErrorIs(t, err, auth.ErrAuthRequired)
}

func TestCompleteCourse(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(repo, fixedClock(start))

	_, err := svc.StartCourse(ctx, user, "c1")
	require.NoError(t, err)
	require.NoError(t, svc.CompleteCourse(ctx, user, "c1"))

	rec, err := svc.CourseProgress(ctx, user, "c1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsCompleted())

	assert.ErrorIs(t, svc.CompleteCourse(ctx, nil, "c1"), auth.ErrAuthRequired)
}
