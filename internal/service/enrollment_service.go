package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/haeun-dev/registrar-api/internal/admission"
	"github.com/haeun-dev/registrar-api/internal/models"
	appErrors "github.com/haeun-dev/registrar-api/pkg/errors"
	"github.com/haeun-dev/registrar-api/pkg/export"
)

type enrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListActiveByCourse(ctx context.Context, courseCode string) ([]models.EnrollmentDetail, error)
}

// EnrollRequest describes an enroll or drop payload.
type EnrollRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	CourseCode string `json:"course_code" validate:"required"`
}

// AdmissionResult is the outcome returned to the HTTP layer.
type AdmissionResult struct {
	Decision   admission.Decision `json:"decision"`
	Enrollment *models.Enrollment `json:"enrollment,omitempty"`
	Occupied   int                `json:"occupied"`
}

// EnrollmentService fronts the admission controller and serves enrollment
// history. The accept/reject decision is made entirely in memory by the
// controller; durability is the deferred writer's job.
type EnrollmentService struct {
	controller *admission.Controller
	ledger     *admission.Ledger
	reader     enrollmentReader
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(controller *admission.Controller, ledger *admission.Ledger, reader enrollmentReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		controller: controller,
		ledger:     ledger,
		reader:     reader,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		validator:  validate,
		logger:     logger,
	}
}

// Enroll requests a seat for a student.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*AdmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	decision, enrollment, err := s.controller.Enroll(ctx, req.StudentID, req.CourseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to process enrollment")
	}

	result := &AdmissionResult{
		Decision:   decision,
		Enrollment: enrollment,
		Occupied:   s.ledger.Occupied(req.CourseCode),
	}
	return result, nil
}

// Drop releases a student's seat.
func (s *EnrollmentService) Drop(ctx context.Context, req EnrollRequest) (*AdmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	decision, err := s.controller.Drop(ctx, req.StudentID, req.CourseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to process drop")
	}

	return &AdmissionResult{
		Decision: decision,
		Occupied: s.ledger.Occupied(req.CourseCode),
	}, nil
}

// List returns enrollment history with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.reader.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Roster returns the active roster for a course.
func (s *EnrollmentService) Roster(ctx context.Context, courseCode string) ([]models.EnrollmentDetail, error) {
	roster, err := s.reader.ListActiveByCourse(ctx, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

// ExportRoster renders the active roster as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, courseCode, format string) ([]byte, string, error) {
	roster, err := s.Roster(ctx, courseCode)
	if err != nil {
		return nil, "", err
	}

	dataset := rosterDataset(roster)

	switch format {
	case "pdf":
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Roster %s", courseCode))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
