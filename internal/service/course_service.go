package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/haeun-dev/registrar-api/internal/models"
	appErrors "github.com/haeun-dev/registrar-api/pkg/errors"
)

const capacityKeyPrefix = "course:capacity:"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, code string) error
	GetCapacity(ctx context.Context, code string) (int, error)
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Code        string `json:"code" validate:"required"`
	Title       string `json:"title" validate:"required"`
	ProfessorNo string `json:"professor_no" validate:"required"`
	Capacity    int    `json:"capacity" validate:"required,gt=0"`
	Classroom   string `json:"classroom"`
	Schedule    string `json:"schedule"`
}

// UpdateCourseRequest describes course edit payload; nil fields are untouched.
type UpdateCourseRequest struct {
	Title       *string              `json:"title"`
	ProfessorNo *string              `json:"professor_no"`
	Capacity    *int                 `json:"capacity" validate:"omitempty,gt=0"`
	Classroom   *string              `json:"classroom"`
	Schedule    *string              `json:"schedule"`
	Status      *models.CourseStatus `json:"status"`
}

// CourseService orchestrates catalog workflows and serves capacity reads for
// the admission controller through a Redis read-through cache. The cache TTL
// is short so administrator capacity edits are observed promptly; edits also
// invalidate the key directly.
type CourseService struct {
	repo      courseRepository
	redis     *redis.Client
	metrics   *MetricsService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, rdb *redis.Client, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &CourseService{repo: repo, redis: rdb, metrics: metrics, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single course by code.
func (s *CourseService) Get(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course in the catalog.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:        req.Code,
		Title:       req.Title,
		ProfessorNo: req.ProfessorNo,
		Capacity:    req.Capacity,
		Classroom:   req.Classroom,
		Schedule:    req.Schedule,
		Status:      models.CourseStatusOpen,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update edits a course. Capacity edits invalidate the cache so the next
// admission check reads the new value; lowering capacity below the occupied
// count freezes new admissions until attrition, it never cancels seats.
func (s *CourseService) Update(ctx context.Context, code string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	capacityChanged := false
	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.ProfessorNo != nil {
		course.ProfessorNo = *req.ProfessorNo
	}
	if req.Capacity != nil && *req.Capacity != course.Capacity {
		course.Capacity = *req.Capacity
		capacityChanged = true
	}
	if req.Classroom != nil {
		course.Classroom = *req.Classroom
	}
	if req.Schedule != nil {
		course.Schedule = *req.Schedule
	}
	if req.Status != nil {
		course.Status = *req.Status
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	if capacityChanged {
		s.invalidateCapacity(ctx, code)
	}
	return course, nil
}

// Delete removes a course from the catalog.
func (s *CourseService) Delete(ctx context.Context, code string) error {
	if _, err := s.repo.FindByCode(ctx, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidateCapacity(ctx, code)
	return nil
}

// GetCapacity implements admission.CourseCatalog. The capacity value flows
// through a short-TTL Redis key; a miss falls back to Postgres and repopulates
// the key. A Redis outage degrades to direct reads, never to a stale answer.
func (s *CourseService) GetCapacity(ctx context.Context, code string) (int, bool, error) {
	key := capacityKeyPrefix + code

	if s.redis != nil {
		start := time.Now()
		raw, err := s.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			s.metrics.RecordCacheOperation(true, time.Since(start))
			if capacity, convErr := strconv.Atoi(raw); convErr == nil {
				return capacity, true, nil
			}
		case errors.Is(err, redis.Nil):
			s.metrics.RecordCacheOperation(false, time.Since(start))
		default:
			s.metrics.RecordCacheOperation(false, time.Since(start))
			s.logger.Warn("capacity cache read failed", zap.String("course_code", code), zap.Error(err))
		}
	}

	capacity, err := s.repo.GetCapacity(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read course capacity: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, strconv.Itoa(capacity), s.cacheTTL).Err(); err != nil {
			s.logger.Warn("capacity cache write failed", zap.String("course_code", code), zap.Error(err))
		}
	}
	return capacity, true, nil
}

func (s *CourseService) invalidateCapacity(ctx context.Context, code string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, capacityKeyPrefix+code).Err(); err != nil {
		s.logger.Warn("capacity cache invalidation failed", zap.String("course_code", code), zap.Error(err))
	}
}
