package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/migrations"
)

func TestMemoryRepository(t *testing.T) {
	testRepositoryContract(t, NewMemoryRepository())
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	testRepositoryContract(t, repo)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set, skipping")
	}

	ctx := context.Background()
	require.NoError(t, MigrateFromDSN(ctx, dsn, migrations.FS))

	store, err := NewPostgresStore(ctx, PostgresConfig{DSN: dsn, MaxOpenConns: 4, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	testRepositoryContract(t, store)
}

func testRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))

	t.Run("lesson upsert is idempotent", func(t *testing.T) {
		user := uuid.NewString()
		first := time.Now().UTC().Truncate(time.Second)
		rec := &models.ProgressRecord{
			UserID: user, CourseID: "c1", ModuleID: "m1", LessonID: "l1",
			CompletedAt: first, LastAccessedAt: first,
		}
		require.NoError(t, repo.UpsertLessonProgress(ctx, rec))

		again := *rec
		again.CompletedAt = first.Add(time.Hour)
		again.LastAccessedAt = first.Add(time.Hour)
		require.NoError(t, repo.UpsertLessonProgress(ctx, &again))

		records, err := repo.ListLessonProgress(ctx, user, "c1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].CompletedAt.Equal(first), "first completion time is kept")
		assert.True(t, records[0].LastAccessedAt.Equal(first.Add(time.Hour)))
	})

	t.Run("lesson key includes module", func(t *testing.T) {
		user := uuid.NewString()
		now := time.Now().UTC()
		for _, module := range []string{"m1", "m2"} {
			require.NoError(t, repo.UpsertLessonProgress(ctx, &models.ProgressRecord{
				UserID: user, CourseID: "c1", ModuleID: module, LessonID: "intro",
				CompletedAt: now, LastAccessedAt: now,
			}))
		}
		require.NoError(t, repo.UpsertLessonProgress(ctx, &models.ProgressRecord{
			UserID: user, CourseID: "c2", ModuleID: "m1", LessonID: "intro",
			CompletedAt: now, LastAccessedAt: now,
		}))

		c1, err := repo.ListLessonProgress(ctx, user, "c1")
		require.NoError(t, err)
		assert.Len(t, c1, 2)

		all, err := repo.ListLessonProgress(ctx, user, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		other, err := repo.ListLessonProgress(ctx, uuid.NewString(), "")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("course progress lifecycle", func(t *testing.T) {
		user := uuid.NewString()
		started := time.Now().UTC().Truncate(time.Second)

		missing, err := repo.GetCourseProgress(ctx, user, "c1")
		require.NoError(t, err)
		assert.Nil(t, missing)

		created, err := repo.CreateCourseProgress(ctx, &models.CourseProgressRecord{
			UserID: user, CourseID: "c1", StartedAt: started, LastAccessedAt: started,
		})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.CreateCourseProgress(ctx, &models.CourseProgressRecord{
			UserID: user, CourseID: "c1", StartedAt: started.Add(time.Minute), LastAccessedAt: started.Add(time.Minute),
		})
		require.NoError(t, err)
		assert.False(t, created, "unique (user, course) keeps the first row")

		require.NoError(t, repo.TouchCourseProgress(ctx, user, "c1", started.Add(2*time.Minute)))
		rec, err := repo.GetCourseProgress(ctx, user, "c1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.StartedAt.Equal(started))
		assert.True(t, rec.LastAccessedAt.Equal(started.Add(2*time.Minute)))
		assert.False(t, rec.IsCompleted())

		done := started.Add(time.Hour)
		require.NoError(t, repo.CompleteCourseProgress(ctx, user, "c1", done))
		require.NoError(t, repo.CompleteCourseProgress(ctx, user, "c1", done.Add(time.Hour)))
		rec, err = repo.GetCourseProgress(ctx, user, "c1")
		require.NoError(t, err)
		require.True(t, rec.IsCompleted())
		assert.True(t, rec.CompletedAt.Equal(done), "completion time is set once")

		list, err := repo.ListCourseProgress(ctx, user)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("complete without start creates the row", func(t *testing.T) {
		user := uuid.NewString()
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, repo.CompleteCourseProgress(ctx, user, "c9", now))

		rec, err := repo.GetCourseProgress(ctx, user, "c9")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.IsCompleted())
	})

	t.Run("concurrent course creation converges", func(t *testing.T) {
		user := uuid.NewString()
		now := time.Now().UTC()

		var wg sync.WaitGroup
		var mu sync.Mutex
		createdCount := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				created, err := repo.CreateCourseProgress(ctx, &models.CourseProgressRecord{
					UserID: user, CourseID: "race", StartedAt: now, LastAccessedAt: now,
				})
				if err == nil && created {
					mu.Lock()
					createdCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		list, err := repo.ListCourseProgress(ctx, user)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.LessOrEqual(t, createdCount, 1)
	})

	t.Run("roles", func(t *testing.T) {
		user := uuid.NewString()
		roles, err := repo.GetRoles(ctx, user)
		require.NoError(t, err)
		assert.Empty(t, roles)

		require.NoError(t, repo.AddRole(ctx, user, models.RoleAdmin))
		require.NoError(t, repo.AddRole(ctx, user, models.RoleAdmin))
		require.NoError(t, repo.AddRole(ctx, user, models.RolePremium))

		roles, err = repo.GetRoles(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, []string{models.RoleAdmin, models.RolePremium}, roles)
	})

	t.Run("access codes and learning paths", func(t *testing.T) {
		code, err := models.GenerateAccessCode()
		require.NoError(t, err)
		user := uuid.NewString()

		ac := &models.AccessCode{
			Code: code, Name: "Workshop", LessonIDs: []string{"c1/m1/l1", "c1/m1/l2"},
			CreatedBy: "admin", CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.CreateAccessCode(ctx, ac))
		assert.ErrorIs(t, repo.CreateAccessCode(ctx, ac), ErrConflict)

		got, err := repo.GetAccessCode(ctx, code)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []string{"c1/m1/l1", "c1/m1/l2"}, got.LessonIDs)

		none, err := repo.GetAccessCode(ctx, "ZZZZZZZ0")
		require.NoError(t, err)
		assert.Nil(t, none)

		path := &models.LearningPath{
			ID: uuid.NewString(), UserID: user, Name: "Workshop",
			LessonIDs: got.LessonIDs, AccessCode: code, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.CreateLearningPath(ctx, path))

		paths, err := repo.ListLearningPaths(ctx, user)
		require.NoError(t, err)
		require.Len(t, paths, 1)
		assert.True(t, paths[0].Includes(models.LessonKey{CourseID: "c1", ModuleID: "m1", LessonID: "l2"}))

		require.NoError(t, repo.DeleteAccessCode(ctx, code))
		assert.ErrorIs(t, repo.DeleteAccessCode(ctx, code), ErrNotFound)

		paths, err = repo.ListLearningPaths(ctx, user)
		require.NoError(t, err)
		require.Len(t, paths, 1, "paths survive code deletion")
		assert.Empty(t, paths[0].AccessCode)

		assert.ErrorIs(t, repo.DeleteLearningPath(ctx, uuid.NewString(), path.ID), ErrNotFound)
		require.NoError(t, repo.DeleteLearningPath(ctx, user, path.ID))
	})
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(ErrUnavailable))
	assert.True(t, IsTransient(fmt.Errorf("failed to upsert: %w", &net.OpError{Op: "read", Err: errors.New("reset")})))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("permission denied for table")))
}
