package transport

import (
	"context"
	"time"

	"github.com/golang/glog"
)

const (
	DefaultReapInterval = 15 * time.Second
	DefaultMaxIdle      = 15 * time.Second
)

// Reaper closes polling connections that have not been read for longer
// than MaxIdle.
type Reaper struct {
	Registry *Registry
	Interval time.Duration
	MaxIdle  time.Duration
	Now      func() time.Time
	// OnReap runs after a connection is unregistered and closed.
	OnReap func(Conn)
}

func NewReaper(registry *Registry) *Reaper {
	return &Reaper{
		Registry: registry,
		Interval: DefaultReapInterval,
		MaxIdle:  DefaultMaxIdle,
		Now:      time.Now,
	}
}

// Sweep reaps idle polling connections once and returns them.
func (r *Reaper) Sweep() []Conn {
	now := r.Now()
	reaped := make([]Conn, 0)
	for _, c := range r.Registry.Polling() {
		if now.Sub(c.LastRead()) <= r.MaxIdle {
			continue
		}
		r.Registry.Remove(c.Kind(), c.ID())
		c.Close()
		glog.V(1).Infof("reaped idle polling %s %s", c.Kind(), c.ID())
		if r.OnReap != nil {
			r.OnReap(c)
		}
		reaped = append(reaped, c)
	}
	return reaped
}

// Run sweeps every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
