package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCleanupFilterMatchesAll(t *testing.T) {
	now := time.Now()
	info := SandboxInfo{Status: StatusRunning, CreatedAt: now.Add(-time.Minute)}

	assert.True(t, CleanupFilter{}.Matches(info, now))
}

func TestCleanupFilterStatuses(t *testing.T) {
	now := time.Now()
	filter := CleanupFilter{Statuses: []Status{StatusError, StatusStopped}}

	assert.True(t, filter.Matches(SandboxInfo{Status: StatusError}, now))
	assert.True(t, filter.Matches(SandboxInfo{Status: StatusStopped}, now))
	assert.False(t, filter.Matches(SandboxInfo{Status: StatusRunning}, now))
}

func TestCleanupFilterAge(t *testing.T) {
	now := time.Now()
	filter := CleanupFilter{OlderThan: time.Hour}

	assert.False(t, filter.Matches(SandboxInfo{CreatedAt: now.Add(-time.Minute)}, now))
	assert.True(t, filter.Matches(SandboxInfo{CreatedAt: now.Add(-2 * time.Hour)}, now))
}

func TestCleanupFilterCombined(t *testing.T) {
	now := time.Now()
	filter := CleanupFilter{Statuses: []Status{StatusIdle}, OlderThan: time.Hour}

	old := now.Add(-2 * time.Hour)
	assert.True(t, filter.Matches(SandboxInfo{Status: StatusIdle, CreatedAt: old}, now))
	assert.False(t, filter.Matches(SandboxInfo{Status: StatusRunning, CreatedAt: old}, now))
	assert.False(t, filter.Matches(SandboxInfo{Status: StatusIdle, CreatedAt: now}, now))
}
