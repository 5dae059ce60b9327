package services

import (
	"context"

	"github.com/fibreville/tigris/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTransfer(ctx context.Context, event models.TransferEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishPayroll(ctx context.Context, run models.PayrollRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

type MockNameResolver struct {
	mock.Mock
}

func (m *MockNameResolver) ResolveName(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

type MockPayrollRunner struct {
	mock.Mock
}

func (m *MockPayrollRunner) PayAllSalaries(ctx context.Context, payerID string) (models.PayrollRun, error) {
	args := m.Called(ctx, payerID)
	return args.Get(0).(models.PayrollRun), args.Error(1)
}
