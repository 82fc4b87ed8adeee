package geofence

import "sync"

// ShellSource bridges the device shell and the engine. The shell pushes
// fixes over HTTP (the engine never pulls), so Subscribe here only records
// the requested cadence; the shell reads it back from the tracking session
// response and adjusts its own GPS sampling.
type ShellSource struct {
	mu         sync.Mutex
	granted    bool
	subscribed bool
	opts       SubscribeOptions
}

var _ Source = (*ShellSource)(nil)

func NewShellSource() *ShellSource {
	return &ShellSource{granted: true}
}

func (s *ShellSource) Subscribe(opts SubscribeOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = true
	s.opts = opts
	return nil
}

func (s *ShellSource) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = false
}

func (s *ShellSource) PermissionGranted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted
}

// SetPermission reflects the platform permission state as reported by the
// shell. Revoking it does not tear down an active session; the engine
// checks permission when tracking starts.
func (s *ShellSource) SetPermission(granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = granted
}

func (s *ShellSource) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

func (s *ShellSource) Options() SubscribeOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}
