// internal/mocks/browser.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
)

// -- Automation Mocks --

type MockAutomation struct {
	mock.Mock
}

func (m *MockAutomation) StartDriver(ctx context.Context) (browser.Driver, error) {
	args := m.Called(ctx)
	if d := args.Get(0); d != nil {
		return d.(browser.Driver), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	args := m.Called(ctx, opts)
	if b := args.Get(0); b != nil {
		return b.(browser.Browser), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) NewContext(ctx context.Context) (browser.BrowserContext, error) {
	args := m.Called(ctx)
	if c := args.Get(0); c != nil {
		return c.(browser.BrowserContext), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockBrowserContext struct {
	mock.Mock
}

func (m *MockBrowserContext) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(browser.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowserContext) Pages() []browser.Page {
	args := m.Called()
	if p := args.Get(0); p != nil {
		return p.([]browser.Page)
	}
	return nil
}

func (m *MockBrowserContext) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Page Mocks --

type MockPage struct {
	mock.Mock
}

func (m *MockPage) Goto(ctx context.Context, url string, waitUntil browser.WaitUntil) error {
	return m.Called(ctx, url, waitUntil).Error(0)
}

func (m *MockPage) MainFrame() browser.Frame {
	args := m.Called()
	if f := args.Get(0); f != nil {
		return f.(browser.Frame)
	}
	return nil
}

func (m *MockPage) Frames(ctx context.Context) ([]browser.Frame, error) {
	args := m.Called(ctx)
	if f := args.Get(0); f != nil {
		return f.([]browser.Frame), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Wheel(ctx context.Context, dx, dy float64) error {
	return m.Called(ctx, dx, dy).Error(0)
}

func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockFrame struct {
	mock.Mock
}

func (m *MockFrame) ID() string       { return m.Called().String(0) }
func (m *MockFrame) ParentID() string { return m.Called().String(0) }
func (m *MockFrame) Name() string     { return m.Called().String(0) }
func (m *MockFrame) URL() string      { return m.Called().String(0) }
func (m *MockFrame) IsMain() bool     { return m.Called().Bool(0) }

func (m *MockFrame) WaitForLoadState(ctx context.Context, state browser.LoadState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockFrame) Resolve(ctx context.Context, loc schemas.Locator) ([]browser.Element, error) {
	args := m.Called(ctx, loc)
	if e := args.Get(0); e != nil {
		return e.([]browser.Element), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockElement struct {
	mock.Mock
}

func (m *MockElement) Click(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) Fill(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) IsVisible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

var (
	_ browser.Automation     = (*MockAutomation)(nil)
	_ browser.Driver         = (*MockDriver)(nil)
	_ browser.Browser        = (*MockBrowser)(nil)
	_ browser.BrowserContext = (*MockBrowserContext)(nil)
	_ browser.Page           = (*MockPage)(nil)
	_ browser.Frame          = (*MockFrame)(nil)
	_ browser.Element        = (*MockElement)(nil)
)
