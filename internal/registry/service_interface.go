package registry

// Service is a long-running component started and stopped by the service registry.
type Service interface {
	// Start must not block.
	Start() error
	Stop() error
}

// Finisher is implemented by services that can stop on their own, for
// example once the session has ended. Done is closed when the service's
// work has finished, whether or not Stop was called.
type Finisher interface {
	Done() <-chan struct{}
}
