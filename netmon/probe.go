package netmon

import (
	"context"
	"net"
	"sync"
	"time"
)

// DialFunc matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type ProbeConfig struct {
	Addr     string        // host:port that answers when the remote is reachable
	Interval time.Duration // 0 => 15s
	Timeout  time.Duration // 0 => 3s
	Dial     DialFunc      // nil => net.Dialer
}

// Probe reports online while a TCP connection to Addr succeeds.
// It starts offline until the first check completes.
type Probe struct {
	*Manual
	cfg ProbeConfig

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Dial == nil {
		d := &net.Dialer{}
		cfg.Dial = d.DialContext
	}
	return &Probe{Manual: NewManual(false), cfg: cfg}
}

// Check dials once and records the result.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	conn, err := p.cfg.Dial(ctx, "tcp", p.cfg.Addr)
	if err == nil {
		_ = conn.Close()
	}
	p.Set(err == nil)
	return err == nil
}

// Start checks immediately and then every Interval until Stop.
func (p *Probe) Start(ctx context.Context) {
	p.Check(ctx)
	p.ticker = time.NewTicker(p.cfg.Interval)
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.ticker.C:
				p.Check(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Probe) Stop() {
	p.closeOnce.Do(func() {
		if p.stopCh != nil {
			close(p.stopCh)
			p.ticker.Stop()
			p.wg.Wait()
		}
	})
}
