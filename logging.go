package iceagent

import "github.com/pion/logging"

// subsystem scope names used with a logging.LoggerFactory, mirroring the
// per-subsystem logger pattern in the teacher's examples/custom-logger.
const (
	scopeICE  = "ice"
	scopeDTLS = "dtls"
	scopeSTUN = "stun"
)

// loggers bundles the per-subsystem loggers an Agent hands down to its
// Sessions/Streams/Pairs/Bases. debug.{stun,ice,dtls} from Config gate each
// scope independently: a disabled scope is pinned to LogLevelWarn so
// warnings still surface but Debug/Trace chatter does not.
type loggers struct {
	ice  logging.LeveledLogger
	dtls logging.LeveledLogger
	stun logging.LeveledLogger
}

func newLoggers(factory logging.LoggerFactory, debug DebugConfig) *loggers {
	if factory == nil {
		def := logging.NewDefaultLoggerFactory()
		if !debug.ICE {
			def.ScopeLevels[scopeICE] = logging.LogLevelWarn
		}
		if !debug.DTLS {
			def.ScopeLevels[scopeDTLS] = logging.LogLevelWarn
		}
		if !debug.STUN {
			def.ScopeLevels[scopeSTUN] = logging.LogLevelWarn
		}
		factory = def
	}

	return &loggers{
		ice:  factory.NewLogger(scopeICE),
		dtls: factory.NewLogger(scopeDTLS),
		stun: factory.NewLogger(scopeSTUN),
	}
}
