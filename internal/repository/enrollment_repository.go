package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/haeun-dev/registrar-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments. Rows are
// append-only: drops update status, nothing is ever deleted.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollment history filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN courses c ON c.code = e.course_code`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseCode != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_code = $%d", len(args)+1))
		args = append(args, filter.CourseCode)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"course_code":  "e.course_code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_code, e.status, e.enrolled_at, e.cancelled_at,
        s.student_no AS student_no, s.full_name AS student_name, c.title AS course_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_code, status, enrolled_at, cancelled_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsActive checks whether a student currently holds a seat in a course.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, courseCode string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_code = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseCode, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, course_code, status, enrolled_at, cancelled_at)
        VALUES (:id, :student_id, :course_code, :status, :enrolled_at, :cancelled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Cancel flips an enrollment to CANCELLED. CANCELLED is terminal; the guard
// on status keeps a late duplicate job from resurrecting history.
func (r *EnrollmentRepository) Cancel(ctx context.Context, id string, cancelledAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, cancelled_at = $3 WHERE id = $1 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusCancelled, cancelledAt, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("cancel enrollment: %w", err)
	}
	return nil
}

// ListActiveByCourse returns the active roster for a course.
func (r *EnrollmentRepository) ListActiveByCourse(ctx context.Context, courseCode string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_code, e.status, e.enrolled_at, e.cancelled_at,
        s.student_no AS student_no, s.full_name AS student_name, c.title AS course_title
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN courses c ON c.code = e.course_code
        WHERE e.course_code = $1 AND e.status = $2
        ORDER BY e.enrolled_at ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, courseCode, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return enrollments, nil
}

// CountActiveByCourse returns active-seat counts per course for ledger rehydration.
func (r *EnrollmentRepository) CountActiveByCourse(ctx context.Context) ([]models.CourseSeatCount, error) {
	const query = `SELECT course_code, COUNT(*) AS active FROM enrollments WHERE status = $1 GROUP BY course_code`
	var counts []models.CourseSeatCount
	if err := r.db.SelectContext(ctx, &counts, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("count active by course: %w", err)
	}
	return counts, nil
}

// ListActivePairs returns every active (student, course) seat holder for
// rebuilding the duplicate guard.
func (r *EnrollmentRepository) ListActivePairs(ctx context.Context) ([]models.EnrollmentPair, error) {
	const query = `SELECT id, student_id, course_code FROM enrollments WHERE status = $1`
	var pairs []models.EnrollmentPair
	if err := r.db.SelectContext(ctx, &pairs, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active pairs: %w", err)
	}
	return pairs, nil
}
