// Package signals forwards OS signals into the tick loop through a bridge.
package signals

import (
	"context"
	"os"
	"time"

	"github.com/OCAP2/tickbridge/pkg/bridge"
)

// Shutdown is triggered when the process is asked to stop.
type Shutdown struct {
	Signal string    `json:"signal"`
	At     time.Time `json:"at"`
}

// Forward waits for the first value on notify and sends it as a Shutdown.
// It returns when a signal was forwarded or ctx is done, and closes tx
// either way.
func Forward(ctx context.Context, tx *bridge.Sender[Shutdown], notify <-chan os.Signal) error {
	defer tx.Close()

	select {
	case <-ctx.Done():
		return nil
	case sig := <-notify:
		tx.Send(Shutdown{Signal: sig.String(), At: time.Now()})
		return nil
	}
}
