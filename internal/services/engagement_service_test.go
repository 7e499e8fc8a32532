package services

import (
	"context"
	"testing"

	"example.com/backstage/services/charity/internal/models"
	"example.com/backstage/services/charity/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEngagementRepository struct {
	mock.Mock
}

func (m *MockEngagementRepository) CreateComment(ctx context.Context, comment *models.EventComment) error {
	return m.Called(ctx, comment).Error(0)
}

func (m *MockEngagementRepository) GetComment(ctx context.Context, id uuid.UUID) (*models.EventComment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EventComment), args.Error(1)
}

func (m *MockEngagementRepository) ListComments(ctx context.Context, eventID uuid.UUID, offset, limit int) ([]models.EventComment, int64, error) {
	args := m.Called(ctx, eventID, offset, limit)
	return args.Get(0).([]models.EventComment), args.Get(1).(int64), args.Error(2)
}

func (m *MockEngagementRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockEngagementRepository) ToggleLike(ctx context.Context, commentID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, commentID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngagementRepository) CreateUpdate(ctx context.Context, update *models.EventUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *MockEngagementRepository) GetUpdate(ctx context.Context, eventID, id uuid.UUID) (*models.EventUpdate, error) {
	args := m.Called(ctx, eventID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EventUpdate), args.Error(1)
}

func (m *MockEngagementRepository) ListUpdates(ctx context.Context, eventID uuid.UUID, offset, limit int) ([]models.EventUpdate, int64, error) {
	args := m.Called(ctx, eventID, offset, limit)
	return args.Get(0).([]models.EventUpdate), args.Get(1).(int64), args.Error(2)
}

func (m *MockEngagementRepository) SaveUpdate(ctx context.Context, update *models.EventUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *MockEngagementRepository) DeleteUpdate(ctx context.Context, eventID, id uuid.UUID) error {
	return m.Called(ctx, eventID, id).Error(0)
}

func TestDeleteCommentPermissions(t *testing.T) {
	repo := new(MockEngagementRepository)
	env := newTestEnv(t, func(d *Dependencies) { d.Repos.Engagement = repo })
	ctx := context.Background()

	owner, author := user(), user()
	event := env.store.addEvent(owner.UserID, env.now)
	comment := &models.EventComment{EventID: event.ID, UserID: author.UserID, Content: "Count me in"}
	comment.ID = uuid.New()

	repo.On("GetComment", mock.Anything, comment.ID).Return(comment, nil)
	repo.On("DeleteComment", mock.Anything, comment.ID).Return(nil).Twice()

	require.ErrorIs(t, env.services.Engagement.DeleteComment(ctx, event.ID, comment.ID, user()), ErrForbidden)
	require.NoError(t, env.services.Engagement.DeleteComment(ctx, event.ID, comment.ID, author))
	require.NoError(t, env.services.Engagement.DeleteComment(ctx, event.ID, comment.ID, owner))
	require.ErrorIs(t, env.services.Engagement.DeleteComment(ctx, uuid.New(), comment.ID, author), ErrNotFound)
	repo.AssertExpectations(t)
}

func TestCommentsPageSize(t *testing.T) {
	repo := new(MockEngagementRepository)
	env := newTestEnv(t, func(d *Dependencies) { d.Repos.Engagement = repo })
	eventID := uuid.New()

	repo.On("ListComments", mock.Anything, eventID, 20, 10).Return([]models.EventComment{}, int64(25), nil).Once()

	page, err := env.services.Engagement.ListComments(context.Background(), eventID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 10, page.PerPage)
	repo.AssertExpectations(t)
}

func TestCommentValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.services.Engagement.AddComment(context.Background(), uuid.New(), user(), CommentInput{Content: "hi"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "content")
}

func TestUpdatesRequireOwnerOrAdmin(t *testing.T) {
	repo := new(MockEngagementRepository)
	env := newTestEnv(t, func(d *Dependencies) { d.Repos.Engagement = repo })
	owner := user()
	event := env.store.addEvent(owner.UserID, env.now)
	in := UpdateInput{Title: "Week one", Content: "We delivered 40 blankets."}

	repo.On("CreateUpdate", mock.Anything, mock.AnythingOfType("*models.EventUpdate")).Return(nil).Twice()

	_, err := env.services.Engagement.CreateUpdate(context.Background(), event.ID, user(), in)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.services.Engagement.CreateUpdate(context.Background(), event.ID, owner, in)
	require.NoError(t, err)
	_, err = env.services.Engagement.CreateUpdate(context.Background(), event.ID, Actor{UserID: uuid.New(), IsAdmin: true}, in)
	require.NoError(t, err)

	repo.On("DeleteUpdate", mock.Anything, event.ID, mock.Anything).Return(repositories.ErrNotFound).Once()
	require.ErrorIs(t, env.services.Engagement.DeleteUpdate(context.Background(), event.ID, uuid.New(), owner), ErrNotFound)
	repo.AssertExpectations(t)
}
