package constants

import "time"

// DayKeyOffset shifts instants into the app's local timezone (JST) before
// deriving a calendar-day key. This is a fixed property of the product, not
// configuration.
const DayKeyOffset = 9 * time.Hour

const (
	PushGatewayTimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	BattleRunTimeout   = 5 * time.Minute
)

const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	// StreakRetryAttempts bounds retries of the streak transaction when the
	// database reports a write conflict on the profile row.
	StreakRetryAttempts = 5
	StreakRetryBackoff  = 50 * time.Millisecond
)

const (
	// MaxQuestPosts caps the per-quest post scan during aggregation. Battles
	// are small friend groups; a quest near this cap gets a warning so
	// operators notice before results silently truncate.
	MaxQuestPosts = 1000

	// BattleConcurrency bounds how many quests one run aggregates in parallel.
	BattleConcurrency = 4
)

const (
	ShutdownTimeout = 5 * time.Second
)
