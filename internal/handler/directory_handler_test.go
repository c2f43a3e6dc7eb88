package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type fakeTeacherDirectory struct {
	filter    models.TeacherFilter
	updatedBy string
	update    service.UpdateTeacherProfileRequest
}

func (f *fakeTeacherDirectory) List(_ context.Context, filter models.TeacherFilter) ([]models.TeacherListing, *models.Pagination, error) {
	f.filter = filter
	items := []models.TeacherListing{{Teacher: models.Teacher{ID: "teacher-1", HourlyRate: 80}, FullName: "Citra"}}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakeTeacherDirectory) Get(_ context.Context, id string) (*models.TeacherListing, error) {
	if id != "teacher-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return &models.TeacherListing{Teacher: models.Teacher{ID: id}}, nil
}

func (f *fakeTeacherDirectory) UpdateOwnProfile(_ context.Context, teacherID string, req service.UpdateTeacherProfileRequest) (*models.TeacherListing, error) {
	f.updatedBy = teacherID
	f.update = req
	return &models.TeacherListing{Teacher: models.Teacher{ID: teacherID}}, nil
}

func TestTeacherHandlerListParsesFilters(t *testing.T) {
	svc := &fakeTeacherDirectory{}
	h := NewTeacherHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/teachers?subject=math&max_rate=120.5&verified_only=true&page=2&page_size=5&sort_by=rating", nil, nil)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "math", svc.filter.Subject)
	require.NotNil(t, svc.filter.MaxRate)
	assert.InDelta(t, 120.5, *svc.filter.MaxRate, 0.001)
	assert.True(t, svc.filter.VerifiedOnly)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 5, svc.filter.PageSize)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestTeacherHandlerListRejectsNegativeRate(t *testing.T) {
	h := NewTeacherHandler(&fakeTeacherDirectory{})

	c, rec := newTestContext(http.MethodGet, "/teachers?max_rate=-3", nil, nil)
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeacherHandlerGetNotFound(t *testing.T) {
	h := NewTeacherHandler(&fakeTeacherDirectory{})

	c, rec := newTestContext(http.MethodGet, "/teachers/missing", nil, nil)
	h.Get(withParam(c, "id", "missing"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeacherHandlerUpdateMeUsesCaller(t *testing.T) {
	svc := &fakeTeacherDirectory{}
	h := NewTeacherHandler(svc)

	c, rec := newTestContext(http.MethodPatch, "/teachers/me", map[string]interface{}{"bio": "Physics tutor", "subjects": []string{"physics"}}, teacherClaims)
	h.UpdateMe(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, teacherClaims.UserID, svc.updatedBy)
	require.NotNil(t, svc.update.Bio)
	assert.Equal(t, "Physics tutor", *svc.update.Bio)
	assert.Equal(t, []string{"physics"}, svc.update.Subjects)
}

type fakeStudentLedger struct {
	page, size int
	parentID   string
}

func (f *fakeStudentLedger) Get(_ context.Context, claims *models.JWTClaims, id string) (*models.StudentDetail, error) {
	if claims.UserID != id && claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student")
	}
	return &models.StudentDetail{Student: models.Student{ID: id, Tokens: 12}}, nil
}

func (f *fakeStudentLedger) Transactions(_ context.Context, _ *models.JWTClaims, _ string, page, pageSize int) ([]models.TokenTransaction, *models.Pagination, error) {
	f.page, f.size = page, pageSize
	return []models.TokenTransaction{{ID: "tx-1", Amount: -10, Type: models.TokenDebit}}, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: 1}, nil
}

func (f *fakeStudentLedger) Children(_ context.Context, parentID string) ([]models.StudentDetail, error) {
	f.parentID = parentID
	return []models.StudentDetail{}, nil
}

func TestStudentHandlerGet(t *testing.T) {
	h := NewStudentHandler(&fakeStudentLedger{})

	c, rec := newTestContext(http.MethodGet, "/students/student-1", nil, studentClaims)
	h.Get(withParam(c, "id", "student-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var student models.StudentDetail
	decodeData(t, decodeEnvelope(t, rec), &student)
	assert.Equal(t, 12, student.Tokens)

	c, rec = newTestContext(http.MethodGet, "/students/student-2", nil, studentClaims)
	h.Get(withParam(c, "id", "student-2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStudentHandlerTransactionsPaging(t *testing.T) {
	svc := &fakeStudentLedger{}
	h := NewStudentHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/students/student-1/transactions?page=3&page_size=10", nil, studentClaims)
	h.Transactions(withParam(c, "id", "student-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.page)
	assert.Equal(t, 10, svc.size)
}

func TestStudentHandlerChildrenUsesCaller(t *testing.T) {
	svc := &fakeStudentLedger{}
	h := NewStudentHandler(svc)
	parent := &models.JWTClaims{UserID: "parent-1", Role: models.RoleParent}

	c, rec := newTestContext(http.MethodGet, "/parents/me/children", nil, parent)
	h.Children(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parent-1", svc.parentID)
}
