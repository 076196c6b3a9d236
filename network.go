package offcache

// NetworkMonitor reports connectivity. Subscribe must deliver transitions
// only, without blocking the caller for long. See netmon/.
type NetworkMonitor interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool                              { return true }
func (alwaysOnline) Subscribe(func(bool)) (unsubscribe func()) { return func() {} }
