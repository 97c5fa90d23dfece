package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haeun-dev/registrar-api/internal/models"
)

type mockCourseRepo struct {
	courses    map[string]*models.Course
	listResult []models.CourseDetail
	listErr    error
	updated    []models.Course
	deleted    []string
	capErr     error
}

func (m *mockCourseRepo) List(_ context.Context, _ models.CourseFilter) ([]models.CourseDetail, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listResult, len(m.listResult), nil
}

func (m *mockCourseRepo) FindByCode(_ context.Context, code string) (*models.Course, error) {
	if course, ok := m.courses[code]; ok {
		cp := *course
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(_ context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = make(map[string]*models.Course)
	}
	cp := *course
	m.courses[course.Code] = &cp
	return nil
}

func (m *mockCourseRepo) Update(_ context.Context, course *models.Course) error {
	cp := *course
	m.courses[course.Code] = &cp
	m.updated = append(m.updated, cp)
	return nil
}

func (m *mockCourseRepo) Delete(_ context.Context, code string) error {
	delete(m.courses, code)
	m.deleted = append(m.deleted, code)
	return nil
}

func (m *mockCourseRepo) GetCapacity(_ context.Context, code string) (int, error) {
	if m.capErr != nil {
		return 0, m.capErr
	}
	course, ok := m.courses[code]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return course.Capacity, nil
}

func newTestCourseService(repo *mockCourseRepo) *CourseService {
	return NewCourseService(repo, nil, nil, time.Second, nil, nil)
}

func TestCourseServiceCreate(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := newTestCourseService(repo)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Code: "CS101", Title: "Data Structures", ProfessorNo: "P100", Capacity: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusOpen, course.Status)

	_, err = svc.Create(context.Background(), CreateCourseRequest{
		Code: "CS101", Title: "Duplicate", ProfessorNo: "P100", Capacity: 30,
	})
	assert.Error(t, err, "duplicate course code is rejected")
}

func TestCourseServiceCreateValidation(t *testing.T) {
	svc := newTestCourseService(&mockCourseRepo{})

	_, err := svc.Create(context.Background(), CreateCourseRequest{Code: "CS101", Title: "No capacity", ProfessorNo: "P100"})
	assert.Error(t, err, "capacity must be positive")

	_, err = svc.Create(context.Background(), CreateCourseRequest{Title: "No code", ProfessorNo: "P100", Capacity: 10})
	assert.Error(t, err)
}

func TestCourseServiceUpdateCapacity(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"CS101": {Code: "CS101", Title: "Data Structures", Capacity: 30, Status: models.CourseStatusOpen},
	}}
	svc := newTestCourseService(repo)

	newCapacity := 10
	course, err := svc.Update(context.Background(), "CS101", UpdateCourseRequest{Capacity: &newCapacity})
	require.NoError(t, err)
	assert.Equal(t, 10, course.Capacity)
	require.Len(t, repo.updated, 1)

	_, err = svc.Update(context.Background(), "XX999", UpdateCourseRequest{Capacity: &newCapacity})
	assert.Error(t, err)
}

func TestCourseServiceGetCapacity(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"CS101": {Code: "CS101", Capacity: 30},
	}}
	svc := newTestCourseService(repo)

	capacity, found, err := svc.GetCapacity(context.Background(), "CS101")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 30, capacity)

	_, found, err = svc.GetCapacity(context.Background(), "XX999")
	require.NoError(t, err)
	assert.False(t, found, "unknown course is reported, not an error")

	repo.capErr = errors.New("connection reset")
	_, _, err = svc.GetCapacity(context.Background(), "CS101")
	assert.Error(t, err)
}
