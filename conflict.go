package offcache

import "context"

// Conflict describes a conflict outcome reported by the remote.
type Conflict struct {
	Op            Operation
	Local         []byte // payload that was sent
	LocalVersion  uint64
	Remote        []byte
	RemoteVersion uint64
}

// Decision is a resolver's verdict. Strategy overrides the op's tag when
// set; Payload is the bytes to resend (local, merge) or adopt (remote).
type Decision struct {
	Strategy Resolution
	Payload  []byte
}

// ConflictResolver decides how a conflict is settled.
type ConflictResolver interface {
	Resolve(ctx context.Context, c Conflict) (Decision, error)
}

// ResolverFunc adapts a function to ConflictResolver.
type ResolverFunc func(ctx context.Context, c Conflict) (Decision, error)

func (f ResolverFunc) Resolve(ctx context.Context, c Conflict) (Decision, error) { return f(ctx, c) }

// LastWriterWins settles conflicts by version. For "merge" it keeps the side
// with the higher version (local on ties); "local", "remote" and "manual"
// are honored as tagged.
type LastWriterWins struct{}

func (LastWriterWins) Resolve(_ context.Context, c Conflict) (Decision, error) {
	switch c.Op.ConflictResolution {
	case ResolveLocal:
		return Decision{Strategy: ResolveLocal, Payload: c.Local}, nil
	case ResolveRemote:
		return Decision{Strategy: ResolveRemote, Payload: c.Remote}, nil
	case ResolveManual:
		return Decision{Strategy: ResolveManual}, nil
	}
	if c.RemoteVersion > c.LocalVersion {
		return Decision{Strategy: ResolveRemote, Payload: c.Remote}, nil
	}
	return Decision{Strategy: ResolveMerge, Payload: c.Local}, nil
}
