package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"propscan-api/internal/cache"
	"propscan-api/internal/model"
	"propscan-api/internal/repository"
	"propscan-api/pkg/apierror"
)

func validForm() model.PropertyForm {
	return model.PropertyForm{
		Name:           "West Lake Solar",
		Company:        "Hangzhou Energy",
		BusinessType:   "solar",
		StationType:    "commercial",
		RiskLevel:      "medium",
		BusinessNature: "generation",
		SerialCode:     "PROP-2024-000042",
		Province:       "Zhejiang",
		City:           "Hangzhou",
		District:       "Xihu",
		Address:        "478 Wensan Road",
	}
}

func newPropertyService(t *testing.T) (*PropertyService, *repository.MockPropertyRepository, *cache.MemoryCache) {
	ctrl := gomock.NewController(t)
	repo := repository.NewMockPropertyRepository(ctrl)
	c := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = c.Close() })

	svc := NewPropertyService(repo, c, time.Minute)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
	return svc, repo, c
}

func fieldNames(errs []apierror.FieldError) []string {
	names := make([]string, 0, len(errs))
	for _, e := range errs {
		names = append(names, e.Field)
	}
	return names
}

func TestValidateFormAcceptsValidForm(t *testing.T) {
	assert.Empty(t, ValidateForm(validForm()))
}

func TestValidateFormReportsEachField(t *testing.T) {
	f := validForm()
	f.Name = "A"
	f.RiskLevel = "extreme"
	f.SerialCode = "PROP-24-1"
	f.Address = "abc"
	f.City = "这是一个非常非常非常非常非常非常非常长的城市名字"

	assert.ElementsMatch(t, []string{"name", "riskLevel", "serialCode", "address", "city"}, fieldNames(ValidateForm(f)))
}

func TestValidateFormCountsRunes(t *testing.T) {
	f := validForm()
	f.Province = "浙江"
	f.City = "杭州"
	f.District = "西湖"
	assert.Empty(t, ValidateForm(f))
}

func TestPropertyFromForm(t *testing.T) {
	p := PropertyFromForm(validForm())

	assert.Equal(t, "PROP-2024-000042", p.SerialNumber)
	assert.Equal(t, "solar - commercial", p.Description)
	assert.Equal(t, "generation", p.Category)
	assert.Equal(t, "ZhejiangHangzhouXihu478 Wensan Road", p.Location)
	assert.Equal(t, "Hangzhou Energy", p.Metadata.Company)
	assert.Equal(t, "478 Wensan Road", p.Metadata.Address.Detail)

	assert.Equal(t, validForm(), FormFromProperty(p))
}

func TestCreateStoresProperty(t *testing.T) {
	svc, repo, _ := newPropertyService(t)

	form := validForm()
	form.Name = "  West Lake Solar  "
	form.SerialCode = "prop-2024-000042"

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p *model.Property) error {
		assert.Equal(t, "West Lake Solar", p.Name)
		assert.Equal(t, "PROP-2024-000042", p.SerialNumber)
		assert.Equal(t, model.PropertyActive, p.Status)
		assert.NotEmpty(t, p.ID)
		return nil
	})

	p, err := svc.Create(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, 2024, p.CreatedAt.Year())
}

func TestCreateRejectsInvalidForm(t *testing.T) {
	svc, _, _ := newPropertyService(t)

	form := validForm()
	form.Company = ""

	_, err := svc.Create(context.Background(), form)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeValidation, apiErr.Code)
	assert.Equal(t, []string{"company"}, fieldNames(apiErr.Details))
}

func TestCreateMapsDuplicate(t *testing.T) {
	svc, repo, _ := newPropertyService(t)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(repository.ErrDuplicate)

	_, err := svc.Create(context.Background(), validForm())
	assert.Equal(t, apierror.CodeDuplicate, apierror.CodeOf(err))
}

func TestGetBySerialReadsThroughCache(t *testing.T) {
	svc, repo, _ := newPropertyService(t)
	stored := PropertyFromForm(validForm())
	stored.ID = "p1"

	repo.EXPECT().GetBySerial(gomock.Any(), "PROP-2024-000042").Return(&stored, nil).Times(1)

	for i := 0; i < 2; i++ {
		p, err := svc.GetBySerial(context.Background(), " prop-2024-000042 ")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
	}
}

func TestGetBySerialErrors(t *testing.T) {
	svc, repo, c := newPropertyService(t)

	_, err := svc.GetBySerial(context.Background(), "nope")
	assert.Equal(t, apierror.CodeValidation, apierror.CodeOf(err))

	repo.EXPECT().GetBySerial(gomock.Any(), "PROP-2024-000001").Return(nil, repository.ErrNotFound)
	_, err = svc.GetBySerial(context.Background(), "PROP-2024-000001")
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, 0, c.Len(), "misses are not cached")

	repo.EXPECT().GetBySerial(gomock.Any(), "PROP-2024-000002").Return(nil, errors.New("connection reset"))
	_, err = svc.GetBySerial(context.Background(), "PROP-2024-000002")
	assert.Equal(t, apierror.CodeDatabase, apierror.CodeOf(err))
}

func TestUpdateMergesAndInvalidatesCache(t *testing.T) {
	svc, repo, c := newPropertyService(t)
	ctx := context.Background()

	current := PropertyFromForm(validForm())
	current.ID = "p1"
	current.Status = model.PropertyActive
	current.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Set(ctx, cache.PropertyKey(current.SerialNumber), []byte("{}"), time.Minute))

	name := "East Lake Solar"
	status := model.PropertyArchived
	repo.EXPECT().GetByID(gomock.Any(), "p1").Return(&current, nil)
	repo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

	p, err := svc.Update(ctx, "p1", model.PropertyUpdate{Name: &name, Status: &status})
	require.NoError(t, err)

	assert.Equal(t, "East Lake Solar", p.Name)
	assert.Equal(t, "Hangzhou Energy", p.Metadata.Company)
	assert.Equal(t, model.PropertyArchived, p.Status)
	assert.Equal(t, current.CreatedAt, p.CreatedAt)
	assert.Equal(t, 0, c.Len())
}

func TestUpdateRejectsBadStatus(t *testing.T) {
	svc, repo, _ := newPropertyService(t)
	current := PropertyFromForm(validForm())
	current.ID = "p1"

	status := "lost"
	repo.EXPECT().GetByID(gomock.Any(), "p1").Return(&current, nil)

	_, err := svc.Update(context.Background(), "p1", model.PropertyUpdate{Status: &status})
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"status"}, fieldNames(apiErr.Details))
}

func TestDeleteMissingProperty(t *testing.T) {
	svc, repo, _ := newPropertyService(t)
	repo.EXPECT().GetByID(gomock.Any(), "gone").Return(nil, repository.ErrNotFound)

	err := svc.Delete(context.Background(), "gone")
	assert.Equal(t, apierror.CodeNotFound, apierror.CodeOf(err))
}

func TestNextSerial(t *testing.T) {
	svc, repo, _ := newPropertyService(t)

	repo.EXPECT().MaxSequence(gomock.Any(), 2024).Return(41, nil)
	sn, err := svc.NextSerial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PROP-2024-000042", sn)

	repo.EXPECT().MaxSequence(gomock.Any(), 2024).Return(999999, nil)
	_, err = svc.NextSerial(context.Background())
	assert.Equal(t, apierror.CodeConflict, apierror.CodeOf(err))
}

func TestListClampsPaging(t *testing.T) {
	svc, repo, _ := newPropertyService(t)
	repo.EXPECT().List(gomock.Any(), 0, 100).Return([]model.Property{}, int64(0), nil)

	_, _, err := svc.List(context.Background(), 0, 500)
	require.NoError(t, err)
}
