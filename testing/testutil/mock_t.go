package testutil

import (
	"fmt"
	"runtime"
	"testing"
)

// MockT records failures instead of failing the running test. Fixture
// packages use it to check that their assertions fail when they should.
type MockT struct {
	testing.TB
	failed bool
	fatal  bool

	// Message is the first failure reported.
	Message string
	// Logs holds every failure in order.
	Logs []string
}

// NewMockT creates a new MockT instance.
func NewMockT() *MockT {
	return &MockT{}
}

func (m *MockT) Helper() {}

func (m *MockT) Error(args ...any) {
	m.record(fmt.Sprint(args...))
}

func (m *MockT) Errorf(format string, args ...any) {
	m.record(fmt.Sprintf(format, args...))
}

func (m *MockT) record(msg string) {
	if !m.failed {
		m.Message = msg
	}
	m.failed = true
	m.Logs = append(m.Logs, msg)
}

func (m *MockT) Fail() { m.failed = true }

func (m *MockT) FailNow() {
	m.failed = true
	m.fatal = true
	runtime.Goexit()
}

func (m *MockT) Fatal(args ...any) {
	m.Error(args...)
	m.FailNow()
}

func (m *MockT) Fatalf(format string, args ...any) {
	m.Errorf(format, args...)
	m.FailNow()
}

func (m *MockT) Failed() bool { return m.failed }

// Fataled reports whether the run stopped through Fatal or FailNow.
func (m *MockT) Fataled() bool { return m.fatal }

// RunWithMockT runs fn on its own goroutine so Fatal can stop it.
func RunWithMockT(fn func(m *MockT)) *MockT {
	mt := NewMockT()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(mt)
	}()
	<-done
	return mt
}
