// Package config loads the Settings object §6 describes as the runtime's
// CLI/env surface, using struct-tag-driven reflection in the same style as
// the rest of this lineage's configuration loading.
package config

import "github.com/agentjido/jido-sub001/internal/envconfig"

// ErrorPolicyKind selects how DirectiveExec handles ErrorDirective (§4.3,
// §7).
type ErrorPolicyKind string

const (
	ErrorPolicyLogOnly    ErrorPolicyKind = "log_only"
	ErrorPolicyStopOnError ErrorPolicyKind = "stop_on_error"
	ErrorPolicyMaxErrors  ErrorPolicyKind = "max_errors"
)

// Settings is the equivalent configuration object §6 calls for in place
// of a CLI/env surface, plus the domain-stack fields §11 adds (Postgres
// DSN, HTTP bind address, bus recovery interval).
type Settings struct {
	IdleTimeoutMS  int64  `env:"JIDO_IDLE_TIMEOUT_MS" default:"300000" min:"0"`
	MaxQueueSize   int    `env:"JIDO_MAX_QUEUE_SIZE" default:"1000" min:"1"`
	BatchSize      int    `env:"JIDO_BATCH_SIZE" default:"1" min:"1"`
	ErrorPolicy    string `env:"JIDO_ERROR_POLICY" default:"log_only"`
	MaxErrors      int    `env:"JIDO_MAX_ERRORS" default:"5" min:"1"`
	DefaultDispatch string `env:"JIDO_DEFAULT_DISPATCH" default:"logger"`
	LogLevel       string `env:"JIDO_LOG_LEVEL" default:"production"`
	DebugMaxEvents int    `env:"JIDO_DEBUG_MAX_EVENTS" default:"64" min:"0"`

	// Domain-stack (§11): storage and transport wiring.
	PostgresConnString  string `env:"JIDO_POSTGRES_CONNECTION_STRING"`
	PostgresPoolMaxSize int    `env:"JIDO_POSTGRES_POOL_MAX_SIZE" default:"10" min:"1"`
	HTTPAddr            string `env:"JIDO_HTTP_ADDR" default:":8080"`
	BusRecoverIntervalMS int64 `env:"JIDO_BUS_RECOVER_INTERVAL_MS" default:"5000" min:"100"`
	BusRecoverBatchSize  int   `env:"JIDO_BUS_RECOVER_BATCH_SIZE" default:"100" min:"1"`
}

// Load reads Settings from the environment, applying defaults and minimums
// declared in the struct tags above.
func Load() *Settings {
	var s Settings
	envconfig.Load(&s)
	return &s
}

// Policy returns the parsed error policy kind.
func (s *Settings) Policy() ErrorPolicyKind {
	switch s.ErrorPolicy {
	case string(ErrorPolicyStopOnError):
		return ErrorPolicyStopOnError
	case string(ErrorPolicyMaxErrors):
		return ErrorPolicyMaxErrors
	default:
		return ErrorPolicyLogOnly
	}
}
