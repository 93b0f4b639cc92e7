// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/middleman/internal/page"
)

// -- Page Mocks --

// MockPage mocks page.Page.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockPage) Locate(ctx context.Context, sel, frame string) ([]page.Element, error) {
	args := m.Called(ctx, sel, frame)
	els, _ := args.Get(0).([]page.Element)
	return els, args.Error(1)
}

// MockElement mocks page.Element.
type MockElement struct {
	mock.Mock
}

func (m *MockElement) TagName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockElement) Visible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) InnerHTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Value(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Click(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockElement) Fill(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockElement) Check(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Prompt Mocks --

// MockPrompter mocks the operator prompt. Expectations are keyed by the
// question only.
type MockPrompter struct {
	mock.Mock
}

func (m *MockPrompter) Text(ctx context.Context, question string) (string, error) {
	args := m.Called(question)
	return args.String(0), args.Error(1)
}

func (m *MockPrompter) Masked(ctx context.Context, question string) (string, error) {
	args := m.Called(question)
	return args.String(0), args.Error(1)
}
