package services

import (
	"context"
	"fmt"

	"example.com/backstage/services/charity/internal/ledger"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VolunteerItem is a volunteer role to add to an event
type VolunteerItem struct {
	Name          string `json:"name" validate:"required,not_blank,min=2,max=255"`
	Count         int    `json:"count" validate:"required,gte=1,lte=100000"`
	SpecialSkills bool   `json:"special_skills"`
	Description   string `json:"description" validate:"max=1000"`
}

// SupplyItem is a supply quantity to add to an event
type SupplyItem struct {
	Name             string `json:"name" validate:"required,not_blank,min=2,max=255"`
	Count            int    `json:"count" validate:"required,gte=1,lte=1000000"`
	DeliveryOptionID *uint  `json:"delivery_option_id"`
	Description      string `json:"description" validate:"max=1000"`
}

// MoneyItem is a fundraising target
type MoneyItem struct {
	Summ             float64 `json:"summ" validate:"gte=0,lte=100000000"`
	PaymentFrequency string  `json:"payment_frequency" validate:"max=64"`
	Account          string  `json:"account" validate:"max=255"`
}

// VolunteerUpdate changes the name and headcount of an existing slot.
// Bounds match VolunteerItem.
type VolunteerUpdate struct {
	ID    uuid.UUID `json:"id" validate:"required"`
	Name  string    `json:"name" validate:"required,not_blank,min=2,max=255"`
	Count int       `json:"count" validate:"required,gte=1,lte=100000"`
}

// SupplyUpdate changes the name and quantity of an existing lot.
// Bounds match SupplyItem.
type SupplyUpdate struct {
	ID    uuid.UUID `json:"id" validate:"required"`
	Name  string    `json:"name" validate:"required,not_blank,min=2,max=255"`
	Count int       `json:"count" validate:"required,gte=1,lte=1000000"`
}

// MoneyUpdate changes the target of an existing money goal
type MoneyUpdate struct {
	ID   uuid.UUID `json:"id" validate:"required"`
	Summ float64   `json:"summ" validate:"gte=0,lte=100000000"`
}

// VolunteerChanges edits the volunteer slots of an event
type VolunteerChanges struct {
	Remove []uuid.UUID       `json:"remove"`
	Add    []VolunteerItem   `json:"add" validate:"omitempty,dive"`
	Update []VolunteerUpdate `json:"update" validate:"omitempty,dive"`
}

// SupplyChanges edits the supply lots of an event
type SupplyChanges struct {
	Remove []uuid.UUID   `json:"remove"`
	Add    []SupplyItem   `json:"add" validate:"omitempty,dive"`
	Update []SupplyUpdate `json:"update" validate:"omitempty,dive"`
}

// MoneyChanges edits the money goal of an event. Adding replaces the goal.
type MoneyChanges struct {
	Remove []uuid.UUID   `json:"remove"`
	Add    []MoneyItem   `json:"add" validate:"omitempty,dive"`
	Update []MoneyUpdate `json:"update" validate:"omitempty,dive"`
}

// CreateDemandInput declares the initial needs of an event. Absent
// categories are left alone.
type CreateDemandInput struct {
	Volunteers []VolunteerItem `json:"volunteers" validate:"omitempty,dive"`
	Supplies   []SupplyItem    `json:"supplies" validate:"omitempty,dive"`
	Money      []MoneyItem     `json:"money" validate:"omitempty,dive"`
}

// UpdateDemandInput edits the needs of an event per category
type UpdateDemandInput struct {
	Volunteers *VolunteerChanges `json:"volunteers"`
	Supplies   *SupplyChanges    `json:"supplies"`
	Money      *MoneyChanges     `json:"money"`
}

// categoryChanges is the edit applied to the items of one demand category
type categoryChanges interface {
	hasAdds() bool
	remove(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error
	add(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error
	update(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID, field string) error
}

// replacer is implemented by categories whose items can be dropped wholesale
type replacer interface {
	clear(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error
}

// changesFor returns the edit requested for a category, or nil
func (in UpdateDemandInput) changesFor(category models.DemandCategory) categoryChanges {
	switch category {
	case models.CategoryVolunteers:
		if in.Volunteers != nil {
			return in.Volunteers
		}
	case models.CategorySupplies:
		if in.Supplies != nil {
			return in.Supplies
		}
	case models.CategoryMoney:
		if in.Money != nil {
			return in.Money
		}
	}
	return nil
}

func (c *VolunteerChanges) hasAdds() bool { return len(c.Add) > 0 }

func (c *VolunteerChanges) remove(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error {
	return repo.RemoveVolunteerSlots(ctx, demandID, c.Remove)
}

func (c *VolunteerChanges) add(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error {
	slots := make([]models.VolunteerSlot, 0, len(c.Add))
	for _, item := range c.Add {
		slots = append(slots, models.VolunteerSlot{
			DemandID:      demandID,
			Name:          item.Name,
			Count:         item.Count,
			SpecialSkills: item.SpecialSkills,
			Description:   item.Description,
		})
	}
	return repo.AddVolunteerSlots(ctx, slots)
}

func (c *VolunteerChanges) update(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID, field string) error {
	for i, u := range c.Update {
		err := repo.UpdateVolunteerSlot(ctx, demandID, u.ID, u.Name, u.Count)
		if err := itemUpdateError(err, field, i); err != nil {
			return err
		}
	}
	return nil
}

func (c *SupplyChanges) hasAdds() bool { return len(c.Add) > 0 }

func (c *SupplyChanges) remove(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error {
	return repo.RemoveSupplyLots(ctx, demandID, c.Remove)
}

func (c *SupplyChanges) add(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error {
	lots := make([]models.SupplyLot, 0, len(c.Add))
	for _, item := range c.Add {
		lots = append(lots, models.SupplyLot{
			DemandID:         demandID,
			Name:             item.Name,
			Count:            item.Count,
			DeliveryOptionID: item.DeliveryOptionID,
			Description:      item.Description,
		})
	}
	return repo.AddSupplyLots(ctx, lots)
}

func (c *SupplyChanges) update(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID, field string) error {
	for i, u := range c.Update {
		err := repo.UpdateSupplyLot(ctx, demandID, u.ID, u.Name, u.Count)
		if err := itemUpdateError(err, field, i); err != nil {
			return err
		}
	}
	return nil
}

func (c *MoneyChanges) hasAdds() bool { return len(c.Add) > 0 }

func (c *MoneyChanges) remove(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error {
	return repo.RemoveMoneyGoals(ctx, demandID, c.Remove)
}

func (c *MoneyChanges) clear(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error {
	return repo.ClearMoneyGoals(ctx, demandID)
}

func (c *MoneyChanges) add(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID) error {
	goals := make([]models.MoneyGoal, 0, len(c.Add))
	for _, item := range c.Add {
		goals = append(goals, models.MoneyGoal{
			DemandID:         demandID,
			Summ:             item.Summ,
			PaymentFrequency: item.PaymentFrequency,
			Account:          item.Account,
		})
	}
	return repo.AddMoneyGoals(ctx, goals)
}

func (c *MoneyChanges) update(ctx context.Context, repo repositories.DemandRepository, demandID uuid.UUID, field string) error {
	for i, u := range c.Update {
		err := repo.UpdateMoneyGoal(ctx, demandID, u.ID, u.Summ)
		if err := itemUpdateError(err, field, i); err != nil {
			return err
		}
	}
	return nil
}

// itemUpdateError reports a failed item update against its request path
func itemUpdateError(err error, field string, index int) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return fieldError(fmt.Sprintf("%s.update[%d].id", field, index), "does not belong to this demand")
	case errors.Is(err, repositories.ErrCapacityExceeded):
		return fieldError(fmt.Sprintf("%s.update[%d].count", field, index), "is below the count of approved responses")
	default:
		return err
	}
}

// DemandService edits the demand of events
type DemandService struct {
	deps    Dependencies
	events  repositories.EventRepository
	lookups repositories.LookupRepository
	demands repositories.DemandRepository
}

// NewDemandService creates a new demand service
func NewDemandService(deps Dependencies) *DemandService {
	return &DemandService{
		deps:    deps,
		events:  deps.Repos.Events,
		lookups: deps.Repos.Lookups,
		demands: deps.Repos.Demands,
	}
}

// Create declares the demand of an event. Only the owner may call it.
func (s *DemandService) Create(ctx context.Context, eventID uuid.UUID, actor Actor, in CreateDemandInput) ([]models.Demand, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	changes := UpdateDemandInput{}
	if len(in.Volunteers) > 0 {
		changes.Volunteers = &VolunteerChanges{Add: in.Volunteers}
	}
	if len(in.Supplies) > 0 {
		changes.Supplies = &SupplyChanges{Add: in.Supplies}
	}
	if len(in.Money) > 0 {
		changes.Money = &MoneyChanges{Add: in.Money}
	}
	return s.apply(ctx, "create-demand", eventID, actor, changes)
}

// Update applies per-category edits to the demand of an event. Within a
// category removals run first, then adds, then field updates.
func (s *DemandService) Update(ctx context.Context, eventID uuid.UUID, actor Actor, in UpdateDemandInput) ([]models.Demand, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	return s.apply(ctx, "update-demand", eventID, actor, in)
}

// List returns the demand of an event
func (s *DemandService) List(ctx context.Context, eventID uuid.UUID) ([]models.Demand, error) {
	demands, err := s.demands.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, domainError(err, "failed to list demand")
	}
	withRemaining(demands)
	return demands, nil
}

// withRemaining sets the open capacity of every slot and lot from the
// approved responses loaded with it
func withRemaining(demands []models.Demand) {
	for i := range demands {
		for j := range demands[i].Volunteers {
			slot := &demands[i].Volunteers[j]
			approved := 0
			for _, r := range slot.Responses {
				if r.CreatorApproved {
					approved += r.Count
				}
			}
			remaining := ledger.Remaining(slot.Count, approved)
			slot.Remaining = &remaining
		}
		for j := range demands[i].Supplies {
			lot := &demands[i].Supplies[j]
			approved := 0
			for _, r := range lot.Responses {
				if r.UserApproved {
					approved += r.Count
				}
			}
			remaining := ledger.Remaining(lot.Count, approved)
			lot.Remaining = &remaining
		}
	}
}

func (s *DemandService) apply(ctx context.Context, name string, eventID uuid.UUID, actor Actor, in UpdateDemandInput) ([]models.Demand, error) {
	txn := s.deps.Tracer.StartTransaction(name)
	defer s.deps.Tracer.EndTransaction(txn)

	if _, err := loadOwnedEvent(ctx, s.events, eventID, actor, false); err != nil {
		return nil, err
	}

	span := s.deps.Tracer.StartSpan("apply-demand-changes", txn)
	err := s.demands.WithTransaction(ctx, func(ctx context.Context, txRepo repositories.DemandRepository) error {
		for _, category := range models.CategoryOrder {
			changes := in.changesFor(category)
			if changes == nil {
				continue
			}
			if err := s.applyCategory(ctx, txRepo, eventID, category, changes); err != nil {
				return err
			}
		}
		return nil
	})
	span.End()
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		s.deps.Tracer.RecordError(txn, err)
		return nil, domainError(err, "failed to apply demand changes")
	}

	log.Info().
		Str("event_id", eventID.String()).
		Str("operation", name).
		Msg("Demand changed")

	reindex(ctx, s.deps, eventID)
	return s.List(ctx, eventID)
}

func (s *DemandService) applyCategory(ctx context.Context, repo repositories.DemandRepository, eventID uuid.UUID, category models.DemandCategory, changes categoryChanges) error {
	rules := models.Categories[category]

	demandType, err := s.lookups.DemandTypeByName(ctx, string(category))
	if err != nil {
		return errors.Wrapf(err, "failed to load demand type %s", category)
	}
	demand, err := repo.FindOrCreate(ctx, eventID, demandType.ID)
	if err != nil {
		return err
	}

	if err := changes.remove(ctx, repo, demand.ID); err != nil {
		return err
	}
	if rules.ReplaceOnAdd && changes.hasAdds() {
		if r, ok := changes.(replacer); ok {
			if err := r.clear(ctx, repo, demand.ID); err != nil {
				return err
			}
		}
	}
	if err := changes.add(ctx, repo, demand.ID); err != nil {
		return err
	}
	return changes.update(ctx, repo, demand.ID, string(category))
}
