package repositories

import (
	"context"
	"strings"

	"example.com/backstage/services/charity/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SearchSort selects the ordering strategy of a search
type SearchSort string

const (
	SortNatural      SearchSort = ""
	SortFeatured     SearchSort = "featured"
	SortTrending     SearchSort = "trending"
	SortJustLaunched SearchSort = "just_launched"
	SortOldest       SearchSort = "oldest"
	SortEndingSoon   SearchSort = "ending_soon"
	SortClosestToMe  SearchSort = "closest_to_me"
)

// Profit filter values
const (
	ProfitAll     = 0
	ProfitHasGoal = 1
	ProfitNoGoal  = 2
)

// SearchQuery holds the filters of an event search. Zero ids mean no filter.
// A zero Limit returns every match.
type SearchQuery struct {
	Word              string
	TypeDestinationID uint
	PurposeID         uint
	ReligionID        uint
	CountryID         uint
	StateID           uint
	CityID            uint
	Profit            int
	Sort              SearchSort
	Offset            int
	Limit             int
}

// EventSummary is an event with the counters shown in search results
type EventSummary struct {
	Event         models.Event
	CommentsCount int64
	ViewsCount    int64
	PaymentsTotal int64
}

// SearchRepository runs filtered event searches
type SearchRepository interface {
	Search(ctx context.Context, q SearchQuery) ([]EventSummary, int64, error)
}

type searchRepository struct {
	readOnlyDB *gorm.DB
}

// NewSearchRepository creates a new search repository
func NewSearchRepository(readOnlyDB *gorm.DB) SearchRepository {
	return &searchRepository{readOnlyDB: readOnlyDB}
}

const naturalOrder = "events.created_at ASC, events.id ASC"

const moneyGoalExists = `EXISTS (SELECT 1 FROM demands d JOIN money_goals m ON m.demand_id = d.id
	WHERE d.event_id = events.id AND m.summ > 0)`

// Search returns one page of approved, non-closed events and the total match count
func (r *searchRepository) Search(ctx context.Context, q SearchQuery) ([]EventSummary, int64, error) {
	base := r.readOnlyDB.WithContext(ctx).
		Model(&models.Event{}).
		Joins("JOIN event_statuses ON event_statuses.id = events.event_status_id").
		Where("event_statuses.name <> ? AND events.is_approved = ?", models.StatusClosed, true)
	base = applyFilters(base, q).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "failed to count search results")
	}

	query := base.Select("events.*").
		Preload("Status").
		Preload("TypeDestination").
		Preload("Purpose").
		Preload("Religion").
		Preload("Country").
		Preload("State").
		Preload("City").
		Preload("Images", "is_preview = ?", true).
		Preload("Demands.DemandType").
		Preload("Demands.Money").
		Preload("Demands.Volunteers").
		Preload("Demands.Supplies")
	query = applySort(query, q.Sort)
	if q.Limit > 0 {
		query = query.Offset(q.Offset).Limit(q.Limit)
	}

	var events []models.Event
	if err := query.Find(&events).Error; err != nil {
		return nil, 0, translate(err, "failed to search events")
	}
	if len(events) == 0 {
		return []EventSummary{}, total, nil
	}

	ids := make([]uuid.UUID, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}

	db := r.readOnlyDB.WithContext(ctx)
	comments, err := groupedTotals(db, "event_comments", "COUNT(*)", ids)
	if err != nil {
		return nil, 0, translate(err, "failed to count comments")
	}
	views, err := groupedTotals(db, "event_views", "COUNT(*)", ids)
	if err != nil {
		return nil, 0, translate(err, "failed to count views")
	}
	payments, err := groupedTotals(db, "event_payments", "COALESCE(SUM(amount_result), 0)", ids)
	if err != nil {
		return nil, 0, translate(err, "failed to sum payments")
	}

	summaries := make([]EventSummary, len(events))
	for i, event := range events {
		summaries[i] = EventSummary{
			Event:         event,
			CommentsCount: comments[event.ID],
			ViewsCount:    views[event.ID],
			PaymentsTotal: payments[event.ID],
		}
	}
	return summaries, total, nil
}

func applyFilters(db *gorm.DB, q SearchQuery) *gorm.DB {
	if word := strings.TrimSpace(q.Word); word != "" {
		pattern := "%" + escapeLike(word) + "%"
		db = db.Where("(events.title ILIKE ? OR events.short_story ILIKE ?)", pattern, pattern)
	}

	equals := []struct {
		column string
		value  uint
	}{
		{"events.type_destination_id", q.TypeDestinationID},
		{"events.purpose_id", q.PurposeID},
		{"events.religion_id", q.ReligionID},
		{"events.country_id", q.CountryID},
		{"events.state_id", q.StateID},
		{"events.city_id", q.CityID},
	}
	for _, eq := range equals {
		if eq.value != 0 {
			db = db.Where(eq.column+" = ?", eq.value)
		}
	}

	switch q.Profit {
	case ProfitHasGoal:
		db = db.Where(moneyGoalExists)
	case ProfitNoGoal:
		db = db.Where("NOT " + moneyGoalExists)
	}
	return db
}

func applySort(db *gorm.DB, sort SearchSort) *gorm.DB {
	switch sort {
	case SortFeatured:
		db = db.Order("CASE WHEN event_statuses.name = '" + models.StatusFeatured + "' THEN 0 ELSE 1 END")
	case SortTrending:
		db = db.Order("(SELECT COUNT(*) FROM event_views v WHERE v.event_id = events.id) DESC")
	case SortJustLaunched:
		db = db.Order("events.updated_at ASC")
	case SortOldest:
		db = db.Order("events.updated_at DESC")
	case SortEndingSoon:
		db = db.Order("events.finish_date DESC NULLS LAST")
	}
	return db.Order(naturalOrder)
}

// escapeLike escapes the LIKE metacharacters of user input
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// groupedTotals runs one aggregate per event id over a table keyed by event_id
func groupedTotals(db *gorm.DB, table, aggregate string, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []struct {
		EventID uuid.UUID
		Total   int64
	}
	err := db.Table(table).
		Select("event_id, "+aggregate+" AS total").
		Where("event_id IN ?", ids).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		totals[row.EventID] = row.Total
	}
	return totals, nil
}
