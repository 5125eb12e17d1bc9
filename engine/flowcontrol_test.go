package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollWorkqueue(t *testing.T) {
	tests := []struct {
		name         string
		items        []string
		getError     error
		processError error
		updateError  error
		returnNil    bool
		expectResult bool
	}{
		{
			name:         "successful processing",
			items:        []string{"item1"},
			expectResult: true,
		},
		{
			name:         "no items available",
			items:        []string{},
			expectResult: false,
		},
		{
			name:         "get next returns no rows",
			items:        []string{},
			getError:     sql.ErrNoRows,
			expectResult: false,
		},
		{
			name:         "get next error",
			getError:     errors.New("db error"),
			expectResult: false,
		},
		{
			name:         "process error marks failed",
			items:        []string{"item1"},
			processError: errors.New("process error"),
			expectResult: true,
		},
		{
			name:         "update error after success",
			items:        []string{"item1"},
			updateError:  errors.New("update error"),
			expectResult: false,
		},
		{
			name:         "nil item returned",
			returnNil:    true,
			expectResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wq := &mockWorkqueue{
				items:        tt.items,
				getError:     tt.getError,
				processError: tt.processError,
				updateError:  tt.updateError,
				returnNil:    tt.returnNil,
			}

			pollingFunc := PollWorkqueue(wq)
			result := pollingFunc(context.Background())
			assert.Equal(t, tt.expectResult, result)
		})
	}
}

func TestPollWorkqueueSequential(t *testing.T) {
	wq := &mockWorkqueue{items: []string{"item1", "item2"}}
	pollingFunc := PollWorkqueue(wq)

	assert.True(t, pollingFunc(t.Context()))
	assert.True(t, pollingFunc(t.Context()))
	assert.False(t, pollingFunc(t.Context()))
}

func TestWithRateLimiting(t *testing.T) {
	wq := WithRateLimiting[any](&mockWorkqueue{items: []string{"item1", "item2"}}, 1)

	// Processing is delegated to the wrapped queue
	pollingFunc := PollWorkqueue(wq)
	assert.True(t, pollingFunc(t.Context()))

	// Once the burst is spent, a canceled context aborts instead of blocking
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, wq.ProcessItem(ctx, "item2"))
}

func TestCleanup(t *testing.T) {
	db := OpenTestDB(t)
	MustMigrate(db, "CREATE TABLE things (id INTEGER PRIMARY KEY, created INTEGER NOT NULL)")

	_, err := db.Exec("INSERT INTO things (created) VALUES (1), (2), (500)")
	require.NoError(t, err)

	fn := Cleanup(db, "old things", "DELETE FROM things WHERE created < ?", 100)
	assert.False(t, fn(t.Context()))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM things").Scan(&count))
	assert.Equal(t, 1, count)

	// Errors are logged, not fatal
	fn = Cleanup(db, "bogus", "DELETE FROM nonexistent")
	assert.False(t, fn(t.Context()))
}

type mockWorkqueue struct {
	items        []string
	currentIndex int
	getError     error
	processError error
	updateError  error
	returnNil    bool
}

func (m *mockWorkqueue) GetItem(ctx context.Context) (any, error) {
	if m.returnNil {
		return nil, nil
	}
	if m.getError != nil {
		return "", m.getError
	}
	if m.currentIndex >= len(m.items) {
		return "", sql.ErrNoRows
	}
	item := m.items[m.currentIndex]
	m.currentIndex++
	return item, nil
}

func (m *mockWorkqueue) ProcessItem(ctx context.Context, item any) error      { return m.processError }
func (m *mockWorkqueue) UpdateItem(ctx context.Context, i any, ok bool) error { return m.updateError }
