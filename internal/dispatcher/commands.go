package dispatcher

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"avl-gateway/internal/store"
)

/* =======================================================================
                        COMMAND DEFINITION
======================================================================= */

// Command is one operator-enabled Codec 12 command. Nothing is written to
// the wire unless the device's enable flag is set and every limit holds.
type Command struct {
	Name             string
	Build            func() []byte
	Handler          func(ctx context.Context, live *store.Live, imei, text string)
	DailyLimit       int
	SessionLimit     int
	MinRetryInterval time.Duration
	NeedsToRun       func(ctx context.Context, live *store.Live, imei string) bool
}

var (
	cmdMu    sync.RWMutex
	registry = map[string]Command{}
)

func RegisterCommand(c Command) {
	cmdMu.Lock()
	defer cmdMu.Unlock()
	registry[c.Name] = c
}

func getCmd(name string) (Command, bool) {
	cmdMu.RLock()
	defer cmdMu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

/* =======================================================================
                     PER-IMEI COMMAND SESSION STATE
======================================================================= */

type perCmdState struct {
	SessionCount int
	LastAttempt  time.Time
}

var (
	stateMu  sync.Mutex
	cmdState = make(map[string]map[string]*perCmdState)
)

func getState(imei, cmd string) *perCmdState {
	stateMu.Lock()
	defer stateMu.Unlock()

	if cmdState[imei] == nil {
		cmdState[imei] = make(map[string]*perCmdState)
	}
	st, ok := cmdState[imei][cmd]
	if !ok {
		st = &perCmdState{}
		cmdState[imei][cmd] = st
	}
	return st
}

// ReleaseSession clears the per-session counters when a connection ends.
func ReleaseSession(imei string) {
	stateMu.Lock()
	defer stateMu.Unlock()
	delete(cmdState, imei)
}

/* =======================================================================
                  UNIVERSAL COMMAND SCHEDULE FUNCTION
======================================================================= */

// TrySchedule sends cmdName to the device when the operator enabled it for
// this IMEI and no limit is exhausted.
func (d *Dispatcher) TrySchedule(ctx context.Context, imei, cmdName string, conn net.Conn) {
	cmd, ok := getCmd(cmdName)
	if !ok {
		d.logger.Warn("unknown command", zap.String("cmd", cmdName))
		return
	}

	// Operator gate: off by default, per device.
	if d.live.GetString(ctx, "cmd:"+imei+":"+cmdName+":enabled") != "1" {
		return
	}
	if cmd.NeedsToRun != nil && !cmd.NeedsToRun(ctx, d.live, imei) {
		return
	}

	st := getState(imei, cmdName)
	now := time.Now()

	if st.SessionCount >= cmd.SessionLimit {
		return
	}
	if !st.LastAttempt.IsZero() && now.Sub(st.LastAttempt) < cmd.MinRetryInterval {
		return
	}

	allowed, dailyCount, err := d.live.IncDailyCmdCounter(ctx, imei, cmdName, cmd.DailyLimit)
	if err != nil || !allowed {
		return
	}

	if _, err := conn.Write(cmd.Build()); err != nil {
		d.logger.Error("command send failed",
			zap.String("cmd", cmdName), zap.String("imei", imei), zap.Error(err))
		return
	}

	st.SessionCount++
	st.LastAttempt = now

	d.logger.Info("command sent",
		zap.String("cmd", cmdName),
		zap.String("imei", imei),
		zap.Int("session", st.SessionCount),
		zap.Int("daily", dailyCount))
}

/* =======================================================================
              UNIVERSAL ROUTER FOR COMMAND RESPONSES
======================================================================= */

func handleResponses(ctx context.Context, live *store.Live, imei, text string) {
	cmdMu.RLock()
	defer cmdMu.RUnlock()
	for _, c := range registry {
		if c.Handler != nil {
			c.Handler(ctx, live, imei, text)
		}
	}
}
