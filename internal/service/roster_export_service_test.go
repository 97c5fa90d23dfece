package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haeun-dev/registrar-api/internal/models"
	"github.com/haeun-dev/registrar-api/pkg/storage"
)

func newTestRosterExportService(t *testing.T, roster []models.EnrollmentDetail) *RosterExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	reader := &stubEnrollmentReader{roster: roster}
	return NewRosterExportService(reader, store, signer, time.Hour, "/api/v1", nil)
}

func sampleRoster() []models.EnrollmentDetail {
	return []models.EnrollmentDetail{
		{
			Enrollment:  models.Enrollment{ID: "e1", StudentID: "s1", CourseCode: "CS101", Status: models.EnrollmentStatusActive, EnrolledAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
			StudentNo:   "20230001",
			StudentName: "Kim Haeun",
			CourseTitle: "Data Structures",
		},
	}
}

func TestRosterExportGenerateAndDownload(t *testing.T) {
	svc := newTestRosterExportService(t, sampleRoster())

	result, err := svc.Generate(context.Background(), "CS101", "csv")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Contains(t, result.Filename, "CS101")
	assert.Contains(t, result.URL, "/api/v1/exports/download?token=")
	assert.Equal(t, "csv", result.Format)

	file, contentType, err := svc.Download(result.Token)
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, "text/csv", contentType)
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(payload), "20230001"))
}

func TestRosterExportGeneratePDF(t *testing.T) {
	svc := newTestRosterExportService(t, sampleRoster())

	result, err := svc.Generate(context.Background(), "CS101", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf", result.Format)

	file, contentType, err := svc.Download(result.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "application/pdf", contentType)
}

func TestRosterExportRejectsUnknownFormat(t *testing.T) {
	svc := newTestRosterExportService(t, sampleRoster())

	_, err := svc.Generate(context.Background(), "CS101", "xlsx")
	assert.Error(t, err)
}

func TestRosterExportDownloadRejectsForgedToken(t *testing.T) {
	svc := newTestRosterExportService(t, sampleRoster())

	result, err := svc.Generate(context.Background(), "CS101", "csv")
	require.NoError(t, err)

	_, _, err = svc.Download(result.Token + "tampered")
	assert.Error(t, err)

	_, _, err = svc.Download("not.a.valid.token")
	assert.Error(t, err)
}
