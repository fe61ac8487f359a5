package amqp091

// Executor is the task-scheduling capability. The engine spawns the I/O
// loop, internal round trips and consumer callbacks through it instead
// of creating goroutines directly, so embedders can account for or pool
// them.
type Executor interface {
	// Spawn runs f concurrently.
	Spawn(f func())
	// SpawnBlocking runs f concurrently; f may block on syscalls for an
	// extended time (e.g. the TCP/TLS handshake).
	SpawnBlocking(f func())
}

// goExecutor runs everything on plain goroutines.
type goExecutor struct{}

func (goExecutor) Spawn(f func())         { go f() }
func (goExecutor) SpawnBlocking(f func()) { go f() }

// DefaultExecutor returns the goroutine-backed executor.
func DefaultExecutor() Executor { return goExecutor{} }
