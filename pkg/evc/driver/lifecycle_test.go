package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/evc/pkg/util"
)

func advance(t *testing.T, l *Lifecycle, ops ...Op) {
	t.Helper()
	for _, op := range ops {
		require.NoError(t, l.Begin(op), op)
		l.Complete(op)
	}
}

func TestLifecycleHappyPaths(t *testing.T) {
	l := NewLifecycle("x")
	assert.Equal(t, Created, l.State())
	advance(t, l, OpInitialize, OpActivate, OpCommit)
	assert.Equal(t, Committed, l.State())
	assert.True(t, l.State().Terminal())

	l = NewLifecycle("x")
	advance(t, l, OpInitialize, OpDeactivate, OpRollback)
	assert.Equal(t, RolledBack, l.State())
}

func TestLifecycleIllegal(t *testing.T) {
	tests := []struct {
		name  string
		setup []Op
		op    Op
	}{
		{"activate before initialize", nil, OpActivate},
		{"commit before activate", []Op{OpInitialize}, OpCommit},
		{"rollback before activate", []Op{OpInitialize}, OpRollback},
		{"initialize twice", []Op{OpInitialize}, OpInitialize},
		{"activate twice", []Op{OpInitialize, OpActivate}, OpActivate},
		{"deactivate after activate", []Op{OpInitialize, OpActivate}, OpDeactivate},
		{"reuse after commit", []Op{OpInitialize, OpActivate, OpCommit}, OpRollback},
		{"reuse after rollback", []Op{OpInitialize, OpActivate, OpRollback}, OpInitialize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle("l2vpn/pe1")
			advance(t, l, tt.setup...)
			before := l.State()

			err := l.Begin(tt.op)
			require.Error(t, err)
			assert.True(t, errors.Is(err, util.ErrLifecycle))
			var le *util.LifecycleError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, before.String(), le.State)
			assert.Equal(t, string(tt.op), le.Operation)
			assert.Equal(t, before, l.State(), "failed Begin leaves state unchanged")
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ROLLED_BACK", RolledBack.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
	assert.False(t, Activated.Terminal())
}
