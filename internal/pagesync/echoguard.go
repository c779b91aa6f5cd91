package pagesync

type GuardState int

const (
	GuardIdle GuardState = iota
	GuardSuppressingEcho
)

func (s GuardState) String() string {
	if s == GuardSuppressingEcho {
		return "suppressing-echo"
	}
	return "idle"
}

// EchoGuard suppresses the outbound decision for exactly one page-store
// notification: the one caused by applying a remote change.
type EchoGuard struct {
	state GuardState
}

func (g *EchoGuard) State() GuardState {
	return g.state
}

func (g *EchoGuard) BeginRemoteApply() {
	g.state = GuardSuppressingEcho
}

// Consume returns whether the guard was engaged and clears it.
func (g *EchoGuard) Consume() bool {
	engaged := g.state == GuardSuppressingEcho
	g.state = GuardIdle
	return engaged
}

// Reset clears the guard when an apply path ends without a notification.
func (g *EchoGuard) Reset() {
	g.state = GuardIdle
}
