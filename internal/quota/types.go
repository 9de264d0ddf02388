package quota

import "fmt"

// Credential is one API key / search engine id pair with a daily free quota.
// Immutable once loaded from configuration.
type Credential struct {
	ID         string
	APIKey     string
	EngineID   string
	DailyLimit int
}

// Usage is the mutable per-credential accounting record. One per credential,
// mutated only through the pool's store.
type Usage struct {
	CredentialID   string
	UsedToday      int
	LastResetDate  string // YYYY-MM-DD
	TotalAllTime   int
	Disabled       bool
	DisabledReason string
}

// Mode says which bucket a query is billed to.
type Mode int

const (
	// ModeFree bills against the credential's daily free allowance.
	ModeFree Mode = iota
	// ModePaid bills against the shared metered paid counter.
	ModePaid
)

func (m Mode) String() string {
	if m == ModePaid {
		return "paid"
	}
	return "free"
}

// Lease is a mode-tagged grant to spend one unit of quota. The mode is
// decided at acquisition time and carried through to RecordUsage, so a
// query can never be attributed to the wrong bucket by re-deriving the
// pool state at record time.
type Lease struct {
	Credential Credential
	Mode       Mode
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	ActiveCount   int
	DisabledCount int
	FreeUsed      int
	FreeTotal     int
	PaidUsed      int
	EstimatedCost float64
	Mode          Mode
}

// CredentialStatus is the per-credential row in the stats view.
type CredentialStatus struct {
	ID             string
	UsedToday      int
	DailyLimit     int
	TotalAllTime   int
	Disabled       bool
	DisabledReason string
}

// QuotaExhaustedError means every credential's free quota is spent and the
// paid fallback is disabled. Fatal for the current run, recoverable after
// the next daily reset.
type QuotaExhaustedError struct {
	Message string
}

func (e *QuotaExhaustedError) Error() string { return e.Message }

// ErrQuotaExhausted creates a QuotaExhaustedError with a formatted message.
func ErrQuotaExhausted(format string, args ...interface{}) *QuotaExhaustedError {
	return &QuotaExhaustedError{Message: fmt.Sprintf(format, args...)}
}
