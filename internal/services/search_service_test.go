package services

import (
	"context"
	"math"
	"testing"

	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSearchRepository struct {
	mock.Mock
}

func (m *MockSearchRepository) Search(ctx context.Context, q repositories.SearchQuery) ([]repositories.EventSummary, int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]repositories.EventSummary), args.Get(1).(int64), args.Error(2)
}

func summaryFor(title string, cityID uint, city models.City, views int64) repositories.EventSummary {
	e := models.Event{Title: title, CityID: cityID, City: city}
	e.ID = uuid.New()
	return repositories.EventSummary{Event: e, ViewsCount: views}
}

func TestTrendingSearchPassesFiltersAndPage(t *testing.T) {
	repo := new(MockSearchRepository)
	env := newTestEnv(t, func(d *Dependencies) { d.Repos.Search = repo })

	hot := summaryFor("Flood relief", 1, models.City{}, 9)
	hot.PaymentsTotal = 12345
	hot.Event.Images = []models.EventImage{{URL: "https://img/preview.png", IsPreview: true}}
	cold := summaryFor("Flood shelters", 1, models.City{}, 1)

	repo.On("Search", mock.Anything, repositories.SearchQuery{
		Word:   "flood",
		CityID: 7,
		Sort:   repositories.SortTrending,
		Offset: 16,
		Limit:  16,
	}).Return([]repositories.EventSummary{hot, cold}, int64(18), nil).Once()

	page, err := env.services.Search.Search(context.Background(), Actor{}, SearchInput{
		Word:   "flood",
		CityID: 7,
		Sort:   "trending",
		Page:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.LastPage)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Flood relief", page.Data[0].Event.Title)
	assert.Equal(t, "https://img/preview.png", page.Data[0].PreviewImage)
	assert.InDelta(t, 123.45, page.Data[0].PaymentsTotal, 0.0001)
	repo.AssertExpectations(t)
}

func TestSearchRejectsUnknownSort(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.services.Search.Search(context.Background(), Actor{}, SearchInput{Sort: "popular"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "sort")

	_, err = env.services.Search.Search(context.Background(), Actor{}, SearchInput{Profit: 3})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "profit")
}

func TestClosestToMeNeedsCity(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.services.Search.Search(context.Background(), user(), SearchInput{Sort: "closest_to_me"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "sort")
}

func TestClosestToMeOrdersByDistance(t *testing.T) {
	repo := new(MockSearchRepository)
	env := newTestEnv(t, func(d *Dependencies) { d.Repos.Search = repo })

	kyiv := models.City{ID: 1, Name: "Kyiv", Lat: 50.45, Lon: 30.52}
	lviv := models.City{ID: 2, Name: "Lviv", Lat: 49.84, Lon: 24.03}
	odesa := models.City{ID: 3, Name: "Odesa", Lat: 46.48, Lon: 30.72}
	env.store.cities[kyiv.ID] = kyiv

	far := summaryFor("Lviv shelter", lviv.ID, lviv, 0)
	near := summaryFor("Odesa kitchen", odesa.ID, odesa, 0)
	home := summaryFor("Kyiv blood drive", kyiv.ID, kyiv, 0)

	repo.On("Search", mock.Anything, mock.MatchedBy(func(q repositories.SearchQuery) bool {
		return q.Sort == repositories.SortClosestToMe && q.Limit == 0
	})).Return([]repositories.EventSummary{far, near, home}, int64(3), nil)

	page, err := env.services.Search.Search(context.Background(), Actor{UserID: uuid.New(), CityID: kyiv.ID}, SearchInput{Sort: "closest_to_me"})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "Kyiv blood drive", page.Data[0].Event.Title)
	assert.Equal(t, 0.0, *page.Data[0].DistanceKm)
	assert.Equal(t, "Odesa kitchen", page.Data[1].Event.Title)
	assert.Equal(t, "Lviv shelter", page.Data[2].Event.Title)
}

func TestHaversine(t *testing.T) {
	// Paris to London
	d := haversine(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 343.5, d, 1.0)
	assert.Zero(t, haversine(10, 10, 10, 10))
}

func TestSuggestSkipsBlankPrefix(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.services.Search.Suggest(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	options, err := env.services.Search.DeliveryOptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, options, 2)
}

func TestSearchRejectsOutOfRangePage(t *testing.T) {
	repo := new(MockSearchRepository)
	env := newTestEnv(t, func(d *Dependencies) { d.Repos.Search = repo })
	env.store.cities[1] = models.City{ID: 1, Name: "Kyiv", Lat: 50.45, Lon: 30.52}

	for _, sortKey := range []string{"", "closest_to_me"} {
		_, err := env.services.Search.Search(context.Background(), Actor{UserID: uuid.New(), CityID: 1}, SearchInput{
			Sort: sortKey,
			Page: 576460752303423489,
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, sortKey)
		assert.Contains(t, verr.Fields, "page")
	}
	repo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestClosestToMePastLastPageIsEmpty(t *testing.T) {
	repo := new(MockSearchRepository)
	env := newTestEnv(t, func(d *Dependencies) { d.Repos.Search = repo })

	kyiv := models.City{ID: 1, Name: "Kyiv", Lat: 50.45, Lon: 30.52}
	env.store.cities[kyiv.ID] = kyiv
	repo.On("Search", mock.Anything, mock.Anything).
		Return([]repositories.EventSummary{summaryFor("Kyiv blood drive", kyiv.ID, kyiv, 0)}, int64(1), nil)

	page, err := env.services.Search.Search(context.Background(), Actor{UserID: uuid.New(), CityID: kyiv.ID}, SearchInput{
		Sort: "closest_to_me",
		Page: 100000,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, 100000, page.Page)
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 0, pageOffset(1, 16))
	assert.Equal(t, 32, pageOffset(3, 16))
	assert.Equal(t, 0, pageOffset(0, 16))
	assert.Equal(t, math.MaxInt, pageOffset(576460752303423489, 16))
	assert.Equal(t, math.MaxInt, pageOffset(math.MaxInt, 2))
}
