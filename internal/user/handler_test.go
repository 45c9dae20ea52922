package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) FindByID(ctx context.Context, id int) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockRepository) SetStripeCustomerID(ctx context.Context, userID int, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *mockRepository) HasConfirmedBooking(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func TestGetMe(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("unauthenticated", func(t *testing.T) {
		repo := new(mockRepository)
		h := NewHandler(repo)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/me", nil)

		h.GetMe(c)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("found", func(t *testing.T) {
		repo := new(mockRepository)
		repo.On("FindByID", mock.Anything, 3).Return(&User{ID: 3, Name: "Ciara", Email: "ciara@example.com"}, nil)
		h := NewHandler(repo)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/me", nil)
		c.Set("user_id", 3)

		h.GetMe(c)
		assert.Equal(t, http.StatusOK, w.Code)

		var got User
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "ciara@example.com", got.Email)
		repo.AssertExpectations(t)
	})

	t.Run("missing", func(t *testing.T) {
		repo := new(mockRepository)
		repo.On("FindByID", mock.Anything, 9).Return(nil, ErrUserNotFound)
		h := NewHandler(repo)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/me", nil)
		c.Set("user_id", 9)

		h.GetMe(c)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
