package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// ListenForSignals installs SIGTERM/SIGINT handlers that call c.Initiate,
// returning a stop function that removes them. The caller is responsible
// for invoking stop (e.g. via defer) once the coordinator is no longer
// needed.
func ListenForSignals(c *Coordinator) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM:
				c.Initiate(SIGTERM)
			default:
				c.Initiate(SIGINT)
			}
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
