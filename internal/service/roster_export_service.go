package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/haeun-dev/registrar-api/internal/models"
	appErrors "github.com/haeun-dev/registrar-api/pkg/errors"
	"github.com/haeun-dev/registrar-api/pkg/export"
	"github.com/haeun-dev/registrar-api/pkg/storage"
)

type rosterReader interface {
	ListActiveByCourse(ctx context.Context, courseCode string) ([]models.EnrollmentDetail, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// RosterExportResult carries the metadata of an archived roster export.
type RosterExportResult struct {
	Filename  string    `json:"filename"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RosterExportService renders course rosters to files on disk and hands out
// signed download tokens, so an export link can be shared without carrying
// an access token.
type RosterExportService struct {
	reader    rosterReader
	storage   exportStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	resultTTL time.Duration
	apiPrefix string
	logger    *zap.Logger
}

// NewRosterExportService constructs a RosterExportService.
func NewRosterExportService(reader rosterReader, store exportStorage, signer *storage.SignedURLSigner, resultTTL time.Duration, apiPrefix string, logger *zap.Logger) *RosterExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	return &RosterExportService{
		reader:    reader,
		storage:   store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		resultTTL: resultTTL,
		apiPrefix: apiPrefix,
		logger:    logger,
	}
}

// Generate renders the active roster, archives the file and returns a signed
// download token for it.
func (s *RosterExportService) Generate(ctx context.Context, courseCode, format string) (*RosterExportResult, error) {
	roster, err := s.reader.ListActiveByCourse(ctx, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := rosterDataset(roster)

	if format == "" {
		format = "csv"
	}
	var payload []byte
	switch format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Roster %s", courseCode))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster export")
	}

	filename := filepath.Join("rosters", fmt.Sprintf("%s_%s.%s", courseCode, time.Now().UTC().Format("20060102T150405"), format))
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive roster export")
	}

	token, expiresAt, err := s.signer.Generate(courseCode, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export token")
	}

	s.logger.Sugar().Infow("roster export archived", "course_code", courseCode, "file", relPath, "format", format)
	return &RosterExportResult{
		Filename:  relPath,
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/download?token=%s", s.apiPrefix, token),
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// Download validates the token and opens the archived file behind it.
func (s *RosterExportService) Download(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return file, contentTypeForExport(relPath), nil
}

// Cleanup removes archived exports older than the configured TTL.
func (s *RosterExportService) Cleanup() error {
	deleted, err := s.storage.CleanupOlderThan(s.resultTTL)
	if err != nil {
		return err
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("expired roster exports removed", "count", len(deleted))
	}
	return nil
}

func rosterDataset(roster []models.EnrollmentDetail) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"student_no", "student_name", "course_code", "enrolled_at"},
	}
	for _, e := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"student_no":   e.StudentNo,
			"student_name": e.StudentName,
			"course_code":  e.CourseCode,
			"enrolled_at":  e.EnrolledAt.Format("2006-01-02 15:04"),
		})
	}
	return dataset
}

func contentTypeForExport(filename string) string {
	if strings.HasSuffix(filename, ".pdf") {
		return "application/pdf"
	}
	return "text/csv"
}
