package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/deepgram/connected/internal/services/drill"
	"github.com/deepgram/connected/internal/services/session"
)

type MockSessionManager struct {
	mock.Mock
}

func (m *MockSessionManager) Login(ctx context.Context, email, password string) (*session.Session, error) {
	args := m.Called(ctx, email, password)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func (m *MockSessionManager) Signup(ctx context.Context, email, password string) (*session.Session, error) {
	args := m.Called(ctx, email, password)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func (m *MockSessionManager) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSessionManager) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSessionManager) RequireAuthOrRedirect(ctx context.Context, redirectTarget string) (bool, error) {
	args := m.Called(ctx, redirectTarget)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionManager) SetLastDrillID(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionManager) LastDrillID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSessionManager) ClearLastDrillID(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockDrillService struct {
	mock.Mock
}

func (m *MockDrillService) Start(ctx context.Context, req drill.StartRequest) (*drill.StartResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*drill.StartResponse)
	return resp, args.Error(1)
}

func (m *MockDrillService) Complete(ctx context.Context, id string, transcript []drill.Turn) error {
	return m.Called(ctx, id, transcript).Error(0)
}

// MockPoller replays updates to the observer before returning its result
type MockPoller struct {
	mock.Mock
	updates []drill.Update
}

func (m *MockPoller) Run(ctx context.Context, id string, observe func(drill.Update)) (*drill.Result, error) {
	args := m.Called(ctx, id)
	if observe != nil {
		for _, u := range m.updates {
			observe(u)
		}
	}
	res, _ := args.Get(0).(*drill.Result)
	return res, args.Error(1)
}
