package services

import (
	"context"
	"math/rand"
	"testing"

	"example.com/backstage/services/charity/internal/messaging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestApprovalRechecksCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.allowNotifications()
	ctx := context.Background()

	owner := user()
	event := env.store.addEvent(owner.UserID, env.now.AddDate(0, 0, 10))
	slot := env.store.addSlot(event.ID, "Drivers", 2)

	a, b := user(), user()
	respA, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, a, RespondVolunteerInput{Count: 1})
	require.NoError(t, err)
	respB, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, b, RespondVolunteerInput{Count: 2})
	require.NoError(t, err, "approved sum is still zero when B responds")

	require.NoError(t, env.services.Responses.ApproveResponse(ctx, respA.ID, owner))
	assert.Equal(t, 1, env.store.approvedVolunteers(slot.ID))

	err = env.services.Responses.ApproveResponse(ctx, respB.ID, owner)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 1, env.store.approvedVolunteers(slot.ID))
}

func TestRandomApprovalsNeverExceedCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.allowNotifications()
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	owner := user()
	event := env.store.addEvent(owner.UserID, env.now.AddDate(0, 0, 10))
	slots := []uuid.UUID{
		env.store.addSlot(event.ID, "Cooks", 3).ID,
		env.store.addSlot(event.ID, "Drivers", 5).ID,
	}

	var responses []uuid.UUID
	for i := 0; i < 200; i++ {
		slotID := slots[rng.Intn(len(slots))]
		if rng.Intn(2) == 0 || len(responses) == 0 {
			resp, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slotID, user(), RespondVolunteerInput{Count: 1 + rng.Intn(3)})
			if err == nil {
				responses = append(responses, resp.ID)
			} else {
				require.ErrorIs(t, err, ErrCapacityExceeded)
			}
			continue
		}

		id := responses[rng.Intn(len(responses))]
		err := env.services.Responses.ApproveResponse(ctx, id, owner)
		if err != nil {
			require.ErrorIs(t, err, ErrCapacityExceeded)
		}

		for _, s := range slots {
			require.LessOrEqual(t, env.store.approvedVolunteers(s), env.store.slots[s].Count)
		}
	}
}

func TestSecondVolunteerResponseIsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.allowNotifications()
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	slot := env.store.addSlot(event.ID, "Drivers", 5)
	volunteer := user()

	first, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, volunteer, RespondVolunteerInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count, "count defaults to one")

	_, err = env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, volunteer, RespondVolunteerInput{Count: 1})
	require.ErrorIs(t, err, ErrDuplicateResponse)
	assert.Len(t, env.store.volunteers, 1)
}

func TestRespondVolunteerRejectsSlotOfAnotherEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	other := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	slot := env.store.addSlot(other.ID, "Drivers", 5)

	_, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, user(), RespondVolunteerInput{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRespondVolunteerOnClosedEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	slot := env.store.addSlot(event.ID, "Drivers", 5)
	event.EventStatusID = env.store.statuses["closed"].ID

	_, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, user(), RespondVolunteerInput{})
	require.ErrorIs(t, err, ErrStateConflict)
}

func TestRespondVolunteerSendsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	slot := env.store.addSlot(event.ID, "Drivers", 5)
	volunteer := user()

	env.notifier.On("Notify", mock.Anything, volunteer.UserID, messaging.TemplateVolunteerConfirm, mock.MatchedBy(func(p map[string]interface{}) bool {
		token, _ := p["token"].(string)
		return len(token) == 64 && p["event_id"] == event.ID.String()
	})).Return(nil).Once()

	_, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, volunteer, RespondVolunteerInput{})
	require.NoError(t, err)
	env.notifier.AssertExpectations(t)
}

func TestConfirmVolunteerByToken(t *testing.T) {
	env := newTestEnv(t)
	env.allowNotifications()
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	slot := env.store.addSlot(event.ID, "Drivers", 5)
	volunteer := user()

	resp, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, volunteer, RespondVolunteerInput{})
	require.NoError(t, err)

	token := env.store.lastToken(volunteer.UserID, PurposeVolunteerConfirm)
	require.NotEmpty(t, token)

	n, err := env.services.Responses.ConfirmResponse(ctx, event.ID, token, PurposeVolunteerConfirm)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, env.store.volunteers[resp.ID].UserApproved)

	_, err = env.services.Responses.ConfirmResponse(ctx, event.ID, token, PurposeVolunteerConfirm)
	require.ErrorIs(t, err, ErrInvalidToken, "tokens resolve once")
}

func TestConfirmWithoutPendingResponse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	token, err := env.services.Tokens.Issue(ctx, uuid.New(), PurposeVolunteerConfirm)
	require.NoError(t, err)

	_, err = env.services.Responses.ConfirmResponse(ctx, event.ID, token, PurposeVolunteerConfirm)
	require.ErrorIs(t, err, ErrNoMatchingResponse)
}

func TestConfirmWithWrongPurpose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, err := env.services.Tokens.Issue(ctx, uuid.New(), PurposeVolunteerConfirm)
	require.NoError(t, err)

	_, err = env.services.Responses.ConfirmResponse(ctx, uuid.New(), token, PurposeSupplyConfirm)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = env.services.Responses.ConfirmResponse(ctx, uuid.New(), token, "password_reset")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRespondSupplyReportsPerItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	blankets := env.store.addLot(event.ID, "Blankets", 10)
	water := env.store.addLot(event.ID, "Water", 2)
	donor := user()

	env.notifier.On("Notify", mock.Anything, donor.UserID, messaging.TemplateSupplyConfirm, mock.Anything).Return(nil).Once()

	results, err := env.services.Responses.RespondSupply(ctx, event.ID, donor, RespondSupplyInput{Items: []SupplyPledge{
		{LotID: blankets.ID, Count: 4},
		{LotID: water.ID, Count: 3},
		{LotID: uuid.New(), Count: 1},
	}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, SupplyCreated, results[0].Status)
	assert.NotNil(t, results[0].ResponseID)
	assert.Equal(t, SupplyCapacityExceeded, results[1].Status)
	assert.Equal(t, SupplyNotFound, results[2].Status)

	results, err = env.services.Responses.RespondSupply(ctx, event.ID, donor, RespondSupplyInput{Items: []SupplyPledge{
		{LotID: blankets.ID, Count: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, SupplyDuplicate, results[0].Status)
	env.notifier.AssertExpectations(t)
}

func TestSupplyConfirmationRespectsLotCount(t *testing.T) {
	env := newTestEnv(t)
	env.allowNotifications()
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	lot := env.store.addLot(event.ID, "Blankets", 5)
	first, second := user(), user()

	_, err := env.services.Responses.RespondSupply(ctx, event.ID, first, RespondSupplyInput{Items: []SupplyPledge{{LotID: lot.ID, Count: 4}}})
	require.NoError(t, err)
	_, err = env.services.Responses.RespondSupply(ctx, event.ID, second, RespondSupplyInput{Items: []SupplyPledge{{LotID: lot.ID, Count: 3}}})
	require.NoError(t, err)

	n, err := env.services.Responses.ConfirmResponse(ctx, event.ID, env.store.lastToken(first.UserID, PurposeSupplyConfirm), PurposeSupplyConfirm)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.services.Responses.ConfirmResponse(ctx, event.ID, env.store.lastToken(second.UserID, PurposeSupplyConfirm), PurposeSupplyConfirm)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 4, env.store.approvedSupplies(lot.ID))
}

func TestParcelTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.allowNotifications()
	ctx := context.Background()

	owner := user()
	event := env.store.addEvent(owner.UserID, env.now.AddDate(0, 0, 10))
	lot := env.store.addLot(event.ID, "Blankets", 5)
	donor := user()

	results, err := env.services.Responses.RespondSupply(ctx, event.ID, donor, RespondSupplyInput{Items: []SupplyPledge{{LotID: lot.ID, Count: 2}}})
	require.NoError(t, err)
	responseID := *results[0].ResponseID

	require.ErrorIs(t, env.services.Responses.MarkParcelSent(ctx, responseID, owner), ErrForbidden)
	require.NoError(t, env.services.Responses.MarkParcelSent(ctx, responseID, donor))
	assert.True(t, env.store.supplies[responseID].UserApproved, "sending confirms the pledge")

	require.ErrorIs(t, env.services.Responses.MarkParcelReceived(ctx, responseID, donor), ErrForbidden)
	require.NoError(t, env.services.Responses.MarkParcelReceived(ctx, responseID, owner))

	require.ErrorIs(t, env.services.Responses.MarkParcelSent(ctx, responseID, donor), ErrStateConflict)
}

func TestApproveResponseRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	env.allowNotifications()
	ctx := context.Background()

	event := env.store.addEvent(uuid.New(), env.now.AddDate(0, 0, 10))
	slot := env.store.addSlot(event.ID, "Drivers", 5)
	resp, err := env.services.Responses.RespondVolunteer(ctx, event.ID, slot.ID, user(), RespondVolunteerInput{})
	require.NoError(t, err)

	require.ErrorIs(t, env.services.Responses.ApproveResponse(ctx, resp.ID, user()), ErrForbidden)
	require.ErrorIs(t, env.services.Responses.ApproveResponse(ctx, uuid.New(), user()), ErrNotFound)
}
