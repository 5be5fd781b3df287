package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-api/internal/dto"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

func progressRequest(category string, on dto.Date, value float64) dto.AppendProgressRequest {
	return dto.AppendProgressRequest{Category: category, AssessmentDate: &on, ProgressPercentage: &value}
}

func TestProgressAppendAveragesLatestPerCategory(t *testing.T) {
	f := newFixture(t)
	f.store.addStudent(tenantA, "S-1")
	ctx := context.Background()
	f.expectCommits(4)

	_, _, err := f.progress.Append(ctx, tenantA, "S-1", progressRequest("Quran", dto.Date{Time: day(2024, 1, 1)}, 80))
	require.NoError(t, err)
	latestQuran, _, err := f.progress.Append(ctx, tenantA, "S-1", progressRequest("Quran", dto.Date{Time: day(2024, 1, 8)}, 85))
	require.NoError(t, err)
	_, student, err := f.progress.Append(ctx, tenantA, "S-1", progressRequest("Arabic", dto.Date{Time: day(2024, 1, 3)}, 70))
	require.NoError(t, err)
	assert.Equal(t, 78, student.ProgressPercentage)

	current, err := f.progress.Current(ctx, tenantA, "S-1")
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, 70.0, current[0].ProgressPercentage)
	assert.Equal(t, 85.0, current[1].ProgressPercentage)

	history, err := f.progress.ListByStudent(ctx, tenantA, "S-1")
	require.NoError(t, err)
	assert.Len(t, history, 3)

	student, err = f.progress.Delete(ctx, tenantA, latestQuran.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, student.ProgressPercentage)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProgressAppendValidatesPercentage(t *testing.T) {
	f := newFixture(t)
	f.store.addStudent(tenantA, "S-1")

	_, _, err := f.progress.Append(context.Background(), tenantA, "S-1", progressRequest("Quran", dto.Date{Time: day(2024, 1, 1)}, 101))
	assertCode(t, err, appErrors.ErrValidation)
	_, _, err = f.progress.Append(context.Background(), tenantA, "S-1", dto.AppendProgressRequest{Category: "Quran"})
	assertCode(t, err, appErrors.ErrValidation)
	_, _, err = f.progress.Append(context.Background(), tenantA, "S-1", progressRequest("  ", dto.Date{Time: day(2024, 1, 1)}, 50))
	assertCode(t, err, appErrors.ErrValidation)
}

func TestProgressForUnknownStudentIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.store.addStudent(tenantA, "S-1")
	f.expectRollback()

	_, _, err := f.progress.Append(context.Background(), tenantB, "S-1", progressRequest("Quran", dto.Date{Time: day(2024, 1, 1)}, 50))
	assertCode(t, err, appErrors.ErrNotFound)
	_, err = f.progress.Current(context.Background(), tenantB, "S-1")
	assertCode(t, err, appErrors.ErrNotFound)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProgressAppendRollsBackWhenRecomputeFails(t *testing.T) {
	f := newFixture(t)
	f.store.addStudent(tenantA, "S-1")
	f.store.failMetrics = errors.New("disk full")
	f.expectRollback()

	_, _, err := f.progress.Append(context.Background(), tenantA, "S-1", progressRequest("Quran", dto.Date{Time: day(2024, 1, 1)}, 50))
	assertCode(t, err, appErrors.ErrRecomputeFailed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.store.progress)
	assert.Equal(t, 0, f.store.students[studentKey(tenantA, "S-1")].ProgressPercentage)
}
