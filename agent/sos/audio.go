package sos

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// TerminalPlayer is the siren for hosts without an audio stack: it rings
// the terminal bell until stopped. Good enough to be heard, which is all
// the alert needs.
type TerminalPlayer struct {
	stopOnce sync.Once
	stop     chan struct{}
}

func NewTerminalPlayer() *TerminalPlayer {
	return &TerminalPlayer{stop: make(chan struct{})}
}

func (p *TerminalPlayer) Play() error {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				fmt.Fprint(os.Stdout, "\a")
			}
		}
	}()

	return nil
}

func (p *TerminalPlayer) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
