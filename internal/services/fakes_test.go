package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/backstage/services/charity/config"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory stand-in for the relational store. The fakes
// below share it and keep the same guarantees the SQL repositories give:
// unique (user, item) responses and capacity-checked approvals.
type memStore struct {
	mu sync.Mutex

	statuses    map[string]models.EventStatus
	demandTypes map[string]models.DemandType
	cities      map[uint]models.City
	events      map[uuid.UUID]*models.Event
	demands     map[uuid.UUID]*models.Demand
	slots       map[uuid.UUID]*models.VolunteerSlot
	lots        map[uuid.UUID]*models.SupplyLot
	goals       map[uuid.UUID]*models.MoneyGoal
	volunteers  map[uuid.UUID]*models.VolunteerResponse
	supplies    map[uuid.UUID]*models.SupplyResponse
	tokens      map[string]*models.ConfirmationToken
	views       map[[2]uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		statuses: map[string]models.EventStatus{
			models.StatusOpen:     {ID: 1, Name: models.StatusOpen},
			models.StatusFeatured: {ID: 2, Name: models.StatusFeatured},
			models.StatusTrending: {ID: 3, Name: models.StatusTrending},
			models.StatusClosed:   {ID: 4, Name: models.StatusClosed},
		},
		demandTypes: map[string]models.DemandType{
			string(models.CategoryVolunteers): {ID: 1, Name: string(models.CategoryVolunteers)},
			string(models.CategorySupplies):   {ID: 2, Name: string(models.CategorySupplies)},
			string(models.CategoryMoney):      {ID: 3, Name: string(models.CategoryMoney)},
		},
		cities:     map[uint]models.City{},
		events:     map[uuid.UUID]*models.Event{},
		demands:    map[uuid.UUID]*models.Demand{},
		slots:      map[uuid.UUID]*models.VolunteerSlot{},
		lots:       map[uuid.UUID]*models.SupplyLot{},
		goals:      map[uuid.UUID]*models.MoneyGoal{},
		volunteers: map[uuid.UUID]*models.VolunteerResponse{},
		supplies:   map[uuid.UUID]*models.SupplyResponse{},
		tokens:     map[string]*models.ConfirmationToken{},
		views:      map[[2]uuid.UUID]bool{},
	}
}

func (s *memStore) statusByID(id uint) models.EventStatus {
	for _, st := range s.statuses {
		if st.ID == id {
			return st
		}
	}
	return models.EventStatus{}
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// addEvent seeds an approved open event owned by owner
func (s *memStore) addEvent(owner uuid.UUID, finish time.Time) *models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &models.Event{
		UserID:        owner,
		Title:         "Flood relief",
		EventStatusID: s.statuses[models.StatusOpen].ID,
		IsApproved:    true,
		FinishDate:    &finish,
	}
	e.ID = uuid.New()
	s.events[e.ID] = e
	return e
}

// addSlot seeds a volunteer slot under the event
func (s *memStore) addSlot(eventID uuid.UUID, name string, count int) *models.VolunteerSlot {
	d, _ := fakeDemands{s}.FindOrCreate(context.Background(), eventID, s.demandTypes[string(models.CategoryVolunteers)].ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := &models.VolunteerSlot{DemandID: d.ID, Name: name, Count: count}
	slot.ID = uuid.New()
	s.slots[slot.ID] = slot
	return slot
}

// addLot seeds a supply lot under the event
func (s *memStore) addLot(eventID uuid.UUID, name string, count int) *models.SupplyLot {
	d, _ := fakeDemands{s}.FindOrCreate(context.Background(), eventID, s.demandTypes[string(models.CategorySupplies)].ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	lot := &models.SupplyLot{DemandID: d.ID, Name: name, Count: count}
	lot.ID = uuid.New()
	s.lots[lot.ID] = lot
	return lot
}

func (s *memStore) approvedVolunteers(slotID uuid.UUID) int {
	total := 0
	for _, r := range s.volunteers {
		if r.VolunteerSlotID == slotID && r.CreatorApproved {
			total += r.Count
		}
	}
	return total
}

func (s *memStore) approvedSupplies(lotID uuid.UUID) int {
	total := 0
	for _, r := range s.supplies {
		if r.SupplyLotID == lotID && r.UserApproved {
			total += r.Count
		}
	}
	return total
}

func (s *memStore) eventOfSlot(slotID uuid.UUID) uuid.UUID {
	if slot, ok := s.slots[slotID]; ok {
		if d, ok := s.demands[slot.DemandID]; ok {
			return d.EventID
		}
	}
	return uuid.Nil
}

func (s *memStore) eventOfLot(lotID uuid.UUID) uuid.UUID {
	if lot, ok := s.lots[lotID]; ok {
		if d, ok := s.demands[lot.DemandID]; ok {
			return d.EventID
		}
	}
	return uuid.Nil
}

type fakeEvents struct{ s *memStore }

func (f fakeEvents) Create(ctx context.Context, event *models.Event) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	assignID(&event.ID)
	cp := *event
	f.s.events[event.ID] = &cp
	return nil
}

func (f fakeEvents) Update(ctx context.Context, event *models.Event) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	stored, ok := f.s.events[event.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	cp := *event
	cp.EventStatusID = stored.EventStatusID
	cp.IsApproved = stored.IsApproved
	cp.UserID = stored.UserID
	f.s.events[event.ID] = &cp
	return nil
}

func (f fakeEvents) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.events[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *e
	cp.Status = f.s.statusByID(e.EventStatusID)
	return &cp, nil
}

func (f fakeEvents) GetDetail(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	event, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	demands, _ := fakeDemands{f.s}.ListByEvent(ctx, id)
	event.Demands = demands
	return event, nil
}

func (f fakeEvents) SetApproved(ctx context.Context, id uuid.UUID, approved bool) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.events[id]
	if !ok {
		return repositories.ErrNotFound
	}
	e.IsApproved = approved
	return nil
}

func (f fakeEvents) DeleteCascade(ctx context.Context, id uuid.UUID) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.events[id]; !ok {
		return nil, repositories.ErrNotFound
	}
	for rid, r := range f.s.volunteers {
		if f.s.eventOfSlot(r.VolunteerSlotID) == id {
			delete(f.s.volunteers, rid)
		}
	}
	for rid, r := range f.s.supplies {
		if f.s.eventOfLot(r.SupplyLotID) == id {
			delete(f.s.supplies, rid)
		}
	}
	for did, d := range f.s.demands {
		if d.EventID != id {
			continue
		}
		for sid, slot := range f.s.slots {
			if slot.DemandID == did {
				delete(f.s.slots, sid)
			}
		}
		for lid, lot := range f.s.lots {
			if lot.DemandID == did {
				delete(f.s.lots, lid)
			}
		}
		for gid, g := range f.s.goals {
			if g.DemandID == did {
				delete(f.s.goals, gid)
			}
		}
		delete(f.s.demands, did)
	}
	delete(f.s.events, id)
	return []string{"memory://events/" + id.String() + ".png"}, nil
}

func (f fakeEvents) CloseIfOpen(ctx context.Context, id uuid.UUID, closedStatusID uint) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.events[id]
	if !ok || e.EventStatusID == closedStatusID {
		return false, nil
	}
	e.EventStatusID = closedStatusID
	return true, nil
}

func (f fakeEvents) ListExpired(ctx context.Context, today time.Time, closedStatusID uint) ([]models.Event, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Event
	for _, e := range f.s.events {
		if e.FinishDate == nil || e.EventStatusID == closedStatusID {
			continue
		}
		if e.FinishDate.Format(dateLayout) <= today.Format(dateLayout) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f fakeEvents) ListApprovedUpdatedBetween(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Event
	for _, e := range f.s.events {
		if e.IsApproved && e.UpdatedAt.After(from) && !e.UpdatedAt.After(to) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f fakeEvents) ListApproved(ctx context.Context, offset, limit int) ([]models.Event, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Event
	for _, e := range f.s.events {
		if e.IsApproved {
			out = append(out, *e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeLookups struct{ s *memStore }

func (f fakeLookups) StatusByName(ctx context.Context, name string) (*models.EventStatus, error) {
	st, ok := f.s.statuses[name]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &st, nil
}

func (f fakeLookups) DemandTypeByName(ctx context.Context, name string) (*models.DemandType, error) {
	dt, ok := f.s.demandTypes[name]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &dt, nil
}

func (f fakeLookups) DeliveryOptions(ctx context.Context) ([]models.DeliveryOption, error) {
	return []models.DeliveryOption{{ID: 1, Name: "courier"}, {ID: 2, Name: "drop-off"}}, nil
}

func (f fakeLookups) CityByID(ctx context.Context, id uint) (*models.City, error) {
	c, ok := f.s.cities[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &c, nil
}

type fakeDemands struct{ s *memStore }

func (f fakeDemands) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo repositories.DemandRepository) error) error {
	return fn(ctx, f)
}

func (f fakeDemands) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Demand, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Demand
	for _, d := range f.s.demands {
		if d.EventID != eventID {
			continue
		}
		cp := *d
		cp.Volunteers, cp.Supplies, cp.Money = nil, nil, nil
		for _, slot := range f.s.slots {
			if slot.DemandID != d.ID {
				continue
			}
			sc := *slot
			sc.Responses = nil
			for _, r := range f.s.volunteers {
				if r.VolunteerSlotID == slot.ID && r.CreatorApproved {
					sc.Responses = append(sc.Responses, *r)
				}
			}
			cp.Volunteers = append(cp.Volunteers, sc)
		}
		for _, lot := range f.s.lots {
			if lot.DemandID != d.ID {
				continue
			}
			lc := *lot
			lc.Responses = nil
			for _, r := range f.s.supplies {
				if r.SupplyLotID == lot.ID && r.UserApproved {
					lc.Responses = append(lc.Responses, *r)
				}
			}
			cp.Supplies = append(cp.Supplies, lc)
		}
		for _, g := range f.s.goals {
			if g.DemandID == d.ID {
				cp.Money = append(cp.Money, *g)
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func (f fakeDemands) FindOrCreate(ctx context.Context, eventID uuid.UUID, demandTypeID uint) (*models.Demand, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, d := range f.s.demands {
		if d.EventID == eventID && d.DemandTypeID == demandTypeID {
			cp := *d
			return &cp, nil
		}
	}
	d := &models.Demand{EventID: eventID, DemandTypeID: demandTypeID}
	d.ID = uuid.New()
	f.s.demands[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f fakeDemands) AddVolunteerSlots(ctx context.Context, slots []models.VolunteerSlot) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := range slots {
		assignID(&slots[i].ID)
		cp := slots[i]
		f.s.slots[cp.ID] = &cp
	}
	return nil
}

func (f fakeDemands) AddSupplyLots(ctx context.Context, lots []models.SupplyLot) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := range lots {
		assignID(&lots[i].ID)
		cp := lots[i]
		f.s.lots[cp.ID] = &cp
	}
	return nil
}

func (f fakeDemands) AddMoneyGoals(ctx context.Context, goals []models.MoneyGoal) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := range goals {
		assignID(&goals[i].ID)
		cp := goals[i]
		f.s.goals[cp.ID] = &cp
	}
	return nil
}

func (f fakeDemands) RemoveVolunteerSlots(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range ids {
		if slot, ok := f.s.slots[id]; ok && slot.DemandID == demandID {
			for rid, r := range f.s.volunteers {
				if r.VolunteerSlotID == id {
					delete(f.s.volunteers, rid)
				}
			}
			delete(f.s.slots, id)
		}
	}
	return nil
}

func (f fakeDemands) RemoveSupplyLots(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range ids {
		if lot, ok := f.s.lots[id]; ok && lot.DemandID == demandID {
			for rid, r := range f.s.supplies {
				if r.SupplyLotID == id {
					delete(f.s.supplies, rid)
				}
			}
			delete(f.s.lots, id)
		}
	}
	return nil
}

func (f fakeDemands) RemoveMoneyGoals(ctx context.Context, demandID uuid.UUID, ids []uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range ids {
		if g, ok := f.s.goals[id]; ok && g.DemandID == demandID {
			delete(f.s.goals, id)
		}
	}
	return nil
}

func (f fakeDemands) ClearMoneyGoals(ctx context.Context, demandID uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for id, g := range f.s.goals {
		if g.DemandID == demandID {
			delete(f.s.goals, id)
		}
	}
	return nil
}

func (f fakeDemands) UpdateVolunteerSlot(ctx context.Context, demandID, id uuid.UUID, name string, count int) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	slot, ok := f.s.slots[id]
	if !ok || slot.DemandID != demandID {
		return repositories.ErrNotFound
	}
	if count < f.s.approvedVolunteers(id) {
		return repositories.ErrCapacityExceeded
	}
	slot.Name, slot.Count = name, count
	return nil
}

func (f fakeDemands) UpdateSupplyLot(ctx context.Context, demandID, id uuid.UUID, name string, count int) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	lot, ok := f.s.lots[id]
	if !ok || lot.DemandID != demandID {
		return repositories.ErrNotFound
	}
	if count < f.s.approvedSupplies(id) {
		return repositories.ErrCapacityExceeded
	}
	lot.Name, lot.Count = name, count
	return nil
}

func (f fakeDemands) UpdateMoneyGoal(ctx context.Context, demandID, id uuid.UUID, summ float64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	g, ok := f.s.goals[id]
	if !ok || g.DemandID != demandID {
		return repositories.ErrNotFound
	}
	g.Summ = summ
	return nil
}

func (f fakeDemands) GetVolunteerSlot(ctx context.Context, id uuid.UUID) (*models.VolunteerSlot, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	slot, ok := f.s.slots[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *slot
	if d, ok := f.s.demands[slot.DemandID]; ok {
		dc := *d
		cp.Demand = &dc
	}
	return &cp, nil
}

func (f fakeDemands) GetSupplyLot(ctx context.Context, id uuid.UUID) (*models.SupplyLot, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	lot, ok := f.s.lots[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *lot
	if d, ok := f.s.demands[lot.DemandID]; ok {
		dc := *d
		cp.Demand = &dc
	}
	return &cp, nil
}

type fakeResponses struct{ s *memStore }

func (f fakeResponses) ApprovedVolunteerCount(ctx context.Context, slotID uuid.UUID) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.approvedVolunteers(slotID), nil
}

func (f fakeResponses) ApprovedSupplyCount(ctx context.Context, lotID uuid.UUID) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.approvedSupplies(lotID), nil
}

func (f fakeResponses) CreateVolunteer(ctx context.Context, response *models.VolunteerResponse) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.volunteers {
		if r.VolunteerSlotID == response.VolunteerSlotID && r.UserID == response.UserID {
			return repositories.ErrDuplicateKey
		}
	}
	assignID(&response.ID)
	cp := *response
	f.s.volunteers[cp.ID] = &cp
	return nil
}

func (f fakeResponses) CreateSupply(ctx context.Context, response *models.SupplyResponse) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.supplies {
		if r.SupplyLotID == response.SupplyLotID && r.UserID == response.UserID {
			return repositories.ErrDuplicateKey
		}
	}
	assignID(&response.ID)
	cp := *response
	f.s.supplies[cp.ID] = &cp
	return nil
}

func (f fakeResponses) HasVolunteerResponse(ctx context.Context, slotID, userID uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.volunteers {
		if r.VolunteerSlotID == slotID && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeResponses) HasSupplyResponse(ctx context.Context, lotID, userID uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, r := range f.s.supplies {
		if r.SupplyLotID == lotID && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeResponses) GetVolunteer(ctx context.Context, id uuid.UUID) (*models.VolunteerResponse, error) {
	f.s.mu.Lock()
	r, ok := f.s.volunteers[id]
	f.s.mu.Unlock()
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *r
	slot, err := fakeDemands{f.s}.GetVolunteerSlot(ctx, r.VolunteerSlotID)
	if err == nil {
		cp.VolunteerSlot = slot
	}
	return &cp, nil
}

func (f fakeResponses) GetSupply(ctx context.Context, id uuid.UUID) (*models.SupplyResponse, error) {
	f.s.mu.Lock()
	r, ok := f.s.supplies[id]
	f.s.mu.Unlock()
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *r
	lot, err := fakeDemands{f.s}.GetSupplyLot(ctx, r.SupplyLotID)
	if err == nil {
		cp.SupplyLot = lot
	}
	return &cp, nil
}

func (f fakeResponses) ApproveVolunteer(ctx context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.volunteers[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if r.CreatorApproved {
		return nil
	}
	if f.s.approvedVolunteers(r.VolunteerSlotID)+r.Count > f.s.slots[r.VolunteerSlotID].Count {
		return repositories.ErrCapacityExceeded
	}
	r.CreatorApproved = true
	return nil
}

func (f fakeResponses) ConfirmVolunteers(ctx context.Context, eventID, userID uuid.UUID) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for _, r := range f.s.volunteers {
		if r.UserID == userID && !r.UserApproved && f.s.eventOfSlot(r.VolunteerSlotID) == eventID {
			r.UserApproved = true
			n++
		}
	}
	return n, nil
}

func (f fakeResponses) PendingSupplies(ctx context.Context, eventID, userID uuid.UUID) ([]models.SupplyResponse, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.SupplyResponse
	for _, r := range f.s.supplies {
		if r.UserID == userID && !r.UserApproved && f.s.eventOfLot(r.SupplyLotID) == eventID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f fakeResponses) ConfirmSupply(ctx context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.supplies[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if r.UserApproved {
		return nil
	}
	if f.s.approvedSupplies(r.SupplyLotID)+r.Count > f.s.lots[r.SupplyLotID].Count {
		return repositories.ErrCapacityExceeded
	}
	r.UserApproved = true
	return nil
}

func (f fakeResponses) MarkSupplySent(ctx context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.supplies[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if r.ParcelStatus == models.ParcelReceived {
		return repositories.ErrStateConflict
	}
	if !r.UserApproved && f.s.approvedSupplies(r.SupplyLotID)+r.Count > f.s.lots[r.SupplyLotID].Count {
		return repositories.ErrCapacityExceeded
	}
	r.UserApproved = true
	r.ParcelStatus = models.ParcelSent
	return nil
}

func (f fakeResponses) MarkSupplyReceived(ctx context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.supplies[id]
	if !ok {
		return repositories.ErrNotFound
	}
	r.ParcelStatus = models.ParcelReceived
	return nil
}

func (f fakeResponses) VolunteerReminderTargets(ctx context.Context, until time.Time, closedStatusID uint) ([]repositories.ReminderTarget, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []repositories.ReminderTarget
	for _, r := range f.s.volunteers {
		e, ok := f.s.events[f.s.eventOfSlot(r.VolunteerSlotID)]
		if !ok || e.FinishDate == nil || e.EventStatusID == closedStatusID {
			continue
		}
		if e.FinishDate.Format(dateLayout) > until.Format(dateLayout) {
			continue
		}
		out = append(out, repositories.ReminderTarget{
			ResponseID: r.ID,
			UserID:     r.UserID,
			EventID:    e.ID,
			EventTitle: e.Title,
			SlotName:   f.s.slots[r.VolunteerSlotID].Name,
			FinishDate: *e.FinishDate,
		})
	}
	return out, nil
}

type fakeTokens struct{ s *memStore }

func (f fakeTokens) Create(ctx context.Context, token *models.ConfirmationToken) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cp := *token
	f.s.tokens[token.Token] = &cp
	return nil
}

func (f fakeTokens) Consume(ctx context.Context, token, purpose string, now time.Time) (uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tokens[token]
	if !ok || t.Purpose != purpose || t.ConsumedAt != nil || !t.ExpiresAt.After(now) {
		return uuid.Nil, repositories.ErrTokenInvalid
	}
	t.ConsumedAt = &now
	return t.UserID, nil
}

// lastToken returns the newest unconsumed token of the user
func (s *memStore) lastToken(userID uuid.UUID, purpose string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ConfirmationToken
	for _, t := range s.tokens {
		if t.UserID == userID && t.Purpose == purpose && t.ConsumedAt == nil {
			if latest == nil || t.ExpiresAt.After(latest.ExpiresAt) {
				latest = t
			}
		}
	}
	if latest == nil {
		return ""
	}
	return latest.Token
}

type fakeViews struct{ s *memStore }

func (f fakeViews) Record(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := [2]uuid.UUID{eventID, userID}
	if f.s.views[key] {
		return false, nil
	}
	f.s.views[key] = true
	return true, nil
}

func (f fakeViews) CountByEvent(ctx context.Context, eventID uuid.UUID) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for key := range f.s.views {
		if key[0] == eventID {
			n++
		}
	}
	return n, nil
}

// MockNotifier records outgoing notifications
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, recipientID uuid.UUID, template string, payload map[string]interface{}) error {
	args := m.Called(ctx, recipientID, template, payload)
	return args.Error(0)
}

func (m *MockNotifier) Broadcast(ctx context.Context, audience, template string, payload map[string]interface{}) error {
	args := m.Called(ctx, audience, template, payload)
	return args.Error(0)
}

// MockCache is a testify mock for the Redis cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) SetNX(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Incr(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockCache) Enabled() bool {
	return m.Called().Bool(0)
}

type testEnv struct {
	store    *memStore
	notifier *MockNotifier
	services *Services
	now      time.Time
}

// newTestEnv wires the services over the in-memory store. Notifications
// succeed unless a test sets its own expectations first.
func newTestEnv(t *testing.T, opts ...func(*Dependencies)) *testEnv {
	t.Helper()
	store := newMemStore()
	notifier := new(MockNotifier)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	deps := Dependencies{
		Repos: &repositories.Repositories{
			Events:    fakeEvents{store},
			Lookups:   fakeLookups{store},
			Demands:   fakeDemands{store},
			Responses: fakeResponses{store},
			Tokens:    fakeTokens{store},
			Views:     fakeViews{store},
		},
		Notifier: notifier,
		Metrics:  metrics.NewMetrics(),
		Config: config.Config{
			Search:    config.SearchConfig{PageSize: 16},
			Tokens:    config.TokenConfig{TTL: time.Hour},
			Lifecycle: config.LifecycleConfig{ReminderDays: 2},
			Payment: config.PaymentConfig{
				Currency:          "usd",
				ProfitPercent:     5,
				GatewayPercent:    2.9,
				GatewayFixedCents: 30,
			},
		},
		Now: func() time.Time { return now },
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{
		store:    store,
		notifier: notifier,
		services: New(deps),
		now:      now,
	}
}

// allowNotifications accepts every notification
func (e *testEnv) allowNotifications() {
	e.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	e.notifier.On("Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
}

func user() Actor {
	return Actor{UserID: uuid.New()}
}
