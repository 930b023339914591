package mock

import (
	"context"

	"github.com/vidforge/vidforge/internal/modelark"
)

// MockClient satisfies modelark.Client for testing.
type MockClient struct {
	CreateTaskFunc func(ctx context.Context, req modelark.CreateTaskRequest) (*modelark.GenerationTask, error)
	GetTaskFunc    func(ctx context.Context, taskID string) (*modelark.GenerationTask, error)
	ListTasksFunc  func(ctx context.Context, page, pageSize int) (*modelark.TaskPage, error)
	DeleteTaskFunc func(ctx context.Context, taskID string) error
	PingFunc       func(ctx context.Context) error
}

func (m *MockClient) CreateTask(ctx context.Context, req modelark.CreateTaskRequest) (*modelark.GenerationTask, error) {
	if m.CreateTaskFunc != nil {
		return m.CreateTaskFunc(ctx, req)
	}
	return &modelark.GenerationTask{ID: "cgt-mock-1", Model: req.Model, Status: modelark.TaskStatusPending}, nil
}

func (m *MockClient) GetTask(ctx context.Context, taskID string) (*modelark.GenerationTask, error) {
	if m.GetTaskFunc != nil {
		return m.GetTaskFunc(ctx, taskID)
	}
	return &modelark.GenerationTask{ID: taskID, Status: modelark.TaskStatusRunning}, nil
}

func (m *MockClient) ListTasks(ctx context.Context, page, pageSize int) (*modelark.TaskPage, error) {
	if m.ListTasksFunc != nil {
		return m.ListTasksFunc(ctx, page, pageSize)
	}
	return &modelark.TaskPage{Tasks: []modelark.GenerationTask{}}, nil
}

func (m *MockClient) DeleteTask(ctx context.Context, taskID string) error {
	if m.DeleteTaskFunc != nil {
		return m.DeleteTaskFunc(ctx, taskID)
	}
	return nil
}

func (m *MockClient) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// NewFailingClient returns a MockClient whose every call fails with err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		CreateTaskFunc: func(_ context.Context, _ modelark.CreateTaskRequest) (*modelark.GenerationTask, error) {
			return nil, err
		},
		GetTaskFunc: func(_ context.Context, _ string) (*modelark.GenerationTask, error) {
			return nil, err
		},
		ListTasksFunc: func(_ context.Context, _, _ int) (*modelark.TaskPage, error) {
			return nil, err
		},
		DeleteTaskFunc: func(_ context.Context, _ string) error {
			return err
		},
		PingFunc: func(_ context.Context) error {
			return err
		},
	}
}

// NewNotFoundClient returns a MockClient that reports every task as missing.
func NewNotFoundClient() *MockClient {
	return &MockClient{
		GetTaskFunc: func(_ context.Context, _ string) (*modelark.GenerationTask, error) {
			return nil, modelark.ErrTaskNotFound
		},
		DeleteTaskFunc: func(_ context.Context, _ string) error {
			return modelark.ErrTaskNotFound
		},
	}
}

// Compile-time check that MockClient implements Client.
var _ modelark.Client = (*MockClient)(nil)
