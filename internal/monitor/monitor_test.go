package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/OCAP2/tickbridge/pkg/app"
	"github.com/OCAP2/tickbridge/pkg/bridge"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSample(t *testing.T) {
	s := Sample()
	assert.Positive(t, s.Goroutines)
	assert.NotZero(t, s.HeapAlloc)
	assert.WithinDuration(t, time.Now(), s.Time, time.Second)
}

func TestService_StartWithoutSender(t *testing.T) {
	svc := NewService(Dependencies{})
	assert.Error(t, svc.Start())
	assert.False(t, svc.IsRunning())
}

func TestService_DeliversThroughBridge(t *testing.T) {
	a, err := app.New()
	require.NoError(t, err)
	bridge.AddEvent[Status](a)
	w := a.World()
	reader := app.NewEventReader[Status](w)

	svc := NewService(Dependencies{
		Sender:   bridge.SenderFor[Status](w),
		Interval: time.Millisecond,
	})
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start(), "second start is a no-op")
	assert.True(t, svc.IsRunning())

	var got []Status
	require.Eventually(t, func() bool {
		a.Update()
		got = append(got, reader.Read()...)
		return len(got) >= 3
	}, 5*time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Time.Before(got[i-1].Time), "samples arrive in order")
	}

	// The monitor released its clone; the registered sender keeps the drain healthy.
	assert.NotPanics(t, a.Update)
	require.NoError(t, a.Shutdown())
}

func TestService_Restart(t *testing.T) {
	a, err := app.New()
	require.NoError(t, err)
	bridge.AddTrigger[Status](a)
	w := a.World()

	count := 0
	app.Observe(w, func(*app.World, Status) error { count++; return nil })

	svc := NewService(Dependencies{Sender: bridge.SenderFor[Status](w), Interval: time.Millisecond})
	for round := 0; round < 2; round++ {
		require.NoError(t, svc.Start())
		before := count
		require.Eventually(t, func() bool {
			a.Update()
			return count > before
		}, 5*time.Second, 5*time.Millisecond)
		svc.Stop()
	}
	require.NoError(t, a.Shutdown())
}
