package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *test.Hook
}

// NewTestHelper creates a test helper with a logger that records entries instead of printing them.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// EntriesAt returns the recorded entries at the given level.
func (h *TestHelper) EntriesAt(level logrus.Level) []*logrus.Entry {
	var entries []*logrus.Entry
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

// Warnings returns the recorded warning entries.
func (h *TestHelper) Warnings() []*logrus.Entry {
	return h.EntriesAt(logrus.WarnLevel)
}

// Reset forgets every recorded entry.
func (h *TestHelper) Reset() {
	h.Hook.Reset()
}
