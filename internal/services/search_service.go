package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"example.com/backstage/services/charity/internal/cache"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"
	"example.com/backstage/services/charity/internal/search"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultPageSize  = 16
	suggestionsLimit = 10
	earthRadiusKm    = 6371.0
)

// SearchInput holds the filters, sort key and page of an event search
type SearchInput struct {
	Word              string `form:"word" json:"word" validate:"max=255"`
	TypeDestinationID uint   `form:"type_destination_id" json:"type_destination_id"`
	PurposeID         uint   `form:"purpose_id" json:"purpose_id"`
	ReligionID        uint   `form:"religion_id" json:"religion_id"`
	CountryID         uint   `form:"country_id" json:"country_id"`
	StateID           uint   `form:"state_id" json:"state_id"`
	CityID            uint   `form:"city_id" json:"city_id"`
	Profit            int    `form:"profit" json:"profit" validate:"gte=0,lte=2"`
	Sort              string `form:"sort" json:"sort" validate:"omitempty,oneof=featured trending just_launched oldest ending_soon closest_to_me"`
	Page              int    `form:"page" json:"page" validate:"gte=0,lte=100000"`
}

// EventSummaryView is one search hit
type EventSummaryView struct {
	Event         models.Event `json:"event"`
	PreviewImage  string       `json:"preview_image,omitempty"`
	CommentsCount int64        `json:"comments_count"`
	ViewsCount    int64        `json:"views_count"`
	PaymentsTotal float64      `json:"payments_total"`
	DistanceKm    *float64     `json:"distance_km,omitempty"`
}

// Page is one page of search results
type Page struct {
	Data     []EventSummaryView `json:"data"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PerPage  int                `json:"per_page"`
	LastPage int                `json:"last_page"`
}

// SearchService runs event searches over the relational store and serves
// title suggestions from the search projection.
type SearchService struct {
	deps    Dependencies
	repo    repositories.SearchRepository
	lookups repositories.LookupRepository
}

// NewSearchService creates a new search service
func NewSearchService(deps Dependencies) *SearchService {
	return &SearchService{
		deps:    deps,
		repo:    deps.Repos.Search,
		lookups: deps.Repos.Lookups,
	}
}

func (s *SearchService) pageSize() int {
	if size := s.deps.Config.Search.PageSize; size > 0 {
		return size
	}
	return defaultPageSize
}

// Search returns one page of approved, non-closed events matching the input
func (s *SearchService) Search(ctx context.Context, actor Actor, in SearchInput) (*Page, error) {
	txn := s.deps.Tracer.StartTransaction("search-events")
	defer s.deps.Tracer.EndTransaction(txn)

	if err := validate(in); err != nil {
		return nil, err
	}
	if in.Page < 1 {
		in.Page = 1
	}
	sortKey := repositories.SearchSort(in.Sort)
	if sortKey == repositories.SortClosestToMe && actor.CityID == 0 {
		return nil, fieldError("sort", "requires a signed-in user with a city")
	}

	s.deps.Metrics.IncrementCounter(metrics.SearchQueries)

	key := s.cacheKey(ctx, actor, in)
	if key != "" {
		var cached Page
		if err := s.deps.Cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	query := repositories.SearchQuery{
		Word:              in.Word,
		TypeDestinationID: in.TypeDestinationID,
		PurposeID:         in.PurposeID,
		ReligionID:        in.ReligionID,
		CountryID:         in.CountryID,
		StateID:           in.StateID,
		CityID:            in.CityID,
		Profit:            in.Profit,
		Sort:              sortKey,
	}

	var page *Page
	var err error
	span := s.deps.Tracer.StartSpan("query-events", txn)
	if sortKey == repositories.SortClosestToMe {
		page, err = s.searchByDistance(ctx, actor, query, in.Page)
	} else {
		page, err = s.searchPaged(ctx, query, in.Page)
	}
	span.End()
	if err != nil {
		s.deps.Tracer.RecordError(txn, err)
		return nil, err
	}

	if key != "" {
		if err := s.deps.Cache.Set(ctx, key, page, s.deps.Config.Search.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache search page")
		}
	}
	return page, nil
}

func (s *SearchService) searchPaged(ctx context.Context, query repositories.SearchQuery, pageNum int) (*Page, error) {
	size := s.pageSize()
	query.Offset = pageOffset(pageNum, size)
	query.Limit = size

	summaries, total, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, domainError(err, "failed to search events")
	}

	data := make([]EventSummaryView, 0, len(summaries))
	for _, summary := range summaries {
		data = append(data, summaryView(summary))
	}
	return newPage(data, total, pageNum, size), nil
}

// pageOffset is the row offset of a 1-based page, saturating at math.MaxInt
func pageOffset(pageNum, size int) int {
	if pageNum < 1 || size < 1 {
		return 0
	}
	if pageNum-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (pageNum - 1) * size
}

// searchByDistance loads every match, orders it by distance from the
// actor's city and pages in memory.
func (s *SearchService) searchByDistance(ctx context.Context, actor Actor, query repositories.SearchQuery, pageNum int) (*Page, error) {
	origin, err := s.lookups.CityByID(ctx, actor.CityID)
	if err != nil {
		return nil, domainError(err, "failed to load city")
	}

	summaries, total, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, domainError(err, "failed to search events")
	}

	data := make([]EventSummaryView, 0, len(summaries))
	for _, summary := range summaries {
		view := summaryView(summary)
		d := cityDistance(origin, &summary.Event.City, summary.Event.CityID)
		view.DistanceKm = &d
		data = append(data, view)
	}
	sort.SliceStable(data, func(i, j int) bool {
		return *data[i].DistanceKm < *data[j].DistanceKm
	})

	size := s.pageSize()
	start := pageOffset(pageNum, size)
	if start > len(data) {
		start = len(data)
	}
	end := start + size
	if end > len(data) {
		end = len(data)
	}
	return newPage(data[start:end], total, pageNum, size), nil
}

// Suggest returns event titles starting with the prefix
func (s *SearchService) Suggest(ctx context.Context, prefix string) ([]search.Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []search.Suggestion{}, nil
	}
	if err := validateVar(prefix, "max=100", "prefix"); err != nil {
		return nil, err
	}

	suggestions, err := s.deps.Indexer.SuggestTitles(ctx, prefix, suggestionsLimit)
	if err != nil {
		return nil, domainError(err, "failed to suggest titles")
	}
	return suggestions, nil
}

// DeliveryOptions lists the ways supplies can reach an event
func (s *SearchService) DeliveryOptions(ctx context.Context) ([]models.DeliveryOption, error) {
	options, err := s.lookups.DeliveryOptions(ctx)
	if err != nil {
		return nil, domainError(err, "failed to list delivery options")
	}
	return options, nil
}

// cacheKey returns the key of the cached page, or "" when caching is off
func (s *SearchService) cacheKey(ctx context.Context, actor Actor, in SearchInput) string {
	if s.deps.Cache == nil || !s.deps.Cache.Enabled() {
		return ""
	}

	var version int64
	if err := s.deps.Cache.Get(ctx, cache.SearchVersionKey, &version); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Msg("Search cache unavailable")
		return ""
	}

	city := uint(0)
	if in.Sort == string(repositories.SortClosestToMe) {
		city = actor.CityID
	}
	raw := fmt.Sprintf("%s|%d|%d|%d|%d|%d|%d|%d|%s|%d|%d",
		strings.ToLower(strings.TrimSpace(in.Word)),
		in.TypeDestinationID, in.PurposeID, in.ReligionID,
		in.CountryID, in.StateID, in.CityID,
		in.Profit, in.Sort, in.Page, city)
	sum := sha256.Sum256([]byte(raw))
	return cache.SearchPageKey(version, hex.EncodeToString(sum[:8]))
}

func summaryView(summary repositories.EventSummary) EventSummaryView {
	view := EventSummaryView{
		Event:         summary.Event,
		CommentsCount: summary.CommentsCount,
		ViewsCount:    summary.ViewsCount,
		PaymentsTotal: centsToUnits(summary.PaymentsTotal),
	}
	for _, image := range summary.Event.Images {
		if image.IsPreview {
			view.PreviewImage = image.URL
			break
		}
	}
	return view
}

func newPage(data []EventSummaryView, total int64, pageNum, size int) *Page {
	last := int((total + int64(size) - 1) / int64(size))
	if last < 1 {
		last = 1
	}
	return &Page{
		Data:     data,
		Total:    total,
		Page:     pageNum,
		PerPage:  size,
		LastPage: last,
	}
}

// cityDistance is the great-circle distance in kilometres between two
// cities. The same city is at distance zero.
func cityDistance(origin, target *models.City, targetID uint) float64 {
	if origin.ID == targetID {
		return 0
	}
	return haversine(origin.Lat, origin.Lon, target.Lat, target.Lon)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func centsToUnits(cents int64) float64 {
	return float64(cents) / 100
}
