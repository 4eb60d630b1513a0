package signals

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/OCAP2/tickbridge/pkg/app"
	"github.com/OCAP2/tickbridge/pkg/bridge"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newApp(t *testing.T) (*app.App, *[]Shutdown) {
	t.Helper()
	a, err := app.New()
	require.NoError(t, err)

	bridge.AddTrigger[Shutdown](a)
	var got []Shutdown
	app.Observe(a.World(), func(w *app.World, s Shutdown) error {
		got = append(got, s)
		w.RequestExit()
		return nil
	})
	return a, &got
}

func TestForward_Signal(t *testing.T) {
	a, got := newApp(t)
	notify := make(chan os.Signal, 1)
	notify <- syscall.SIGTERM

	tx := bridge.SenderFor[Shutdown](a.World()).Clone()
	require.NoError(t, Forward(context.Background(), tx, notify))

	a.Update()

	require.Len(t, *got, 1)
	assert.Equal(t, syscall.SIGTERM.String(), (*got)[0].Signal)
	assert.False(t, (*got)[0].At.IsZero())
	assert.True(t, a.World().ExitRequested())
	require.NoError(t, a.Shutdown())
}

func TestForward_ContextDone(t *testing.T) {
	a, got := newApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := bridge.SenderFor[Shutdown](a.World()).Clone()
	require.NoError(t, Forward(ctx, tx, make(chan os.Signal)))

	a.Update()

	assert.Empty(t, *got)
	assert.False(t, a.World().ExitRequested())
	require.NoError(t, a.Shutdown())
}
