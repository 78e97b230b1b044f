package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v4"
	log "github.com/sirupsen/logrus"
)

// Launch-control flags gate the whole ingress surface without a deploy.
const (
	// FlagEmergencyStop rejects every command.
	FlagEmergencyStop = "EMERGENCY_STOP"
	// FlagReadonlyMode rejects mutating commands but leaves reads up.
	FlagReadonlyMode = "READONLY_MODE"
	// FlagMaintenanceMode rejects every command except admin ones.
	FlagMaintenanceMode = "MAINTENANCE_MODE"
	// FlagOrderValueCap, when enabled, bounds the total value of any
	// single order via its integer value.
	FlagOrderValueCap = "ORDER_VALUE_CAP"
)

// Flag is one launch-control switch, optionally carrying an integer value.
type Flag struct {
	Enabled  bool
	IntValue *int64
}

// Flags reads launch_flags through a small expiring cache, so a flipped
// flag takes effect across the fleet within seconds without putting a
// database read on every request.
type Flags struct {
	load  func(ctx context.Context, name string) (Flag, error)
	cache *expirable.LRU[string, Flag]
}

// NewFlags returns Flags backed by |db|.
func NewFlags(db *DB) *Flags {
	return newFlags(func(ctx context.Context, name string) (Flag, error) {
		var f Flag
		var err = db.Pool.QueryRow(ctx,
			`SELECT enabled, int_value FROM launch_flags WHERE flag = $1`, name).
			Scan(&f.Enabled, &f.IntValue)

		if err == pgx.ErrNoRows {
			return Flag{}, nil
		}
		return f, err
	})
}

func newFlags(load func(ctx context.Context, name string) (Flag, error)) *Flags {
	return &Flags{
		load:  load,
		cache: expirable.NewLRU[string, Flag](32, nil, flagCacheTTL),
	}
}

// Lookup returns the current value of |name|. On a load error it logs and
// returns a disabled Flag rather than failing the caller's request: flags
// ride on top of the same database, so a hard outage already fails closed.
func (f *Flags) Lookup(ctx context.Context, name string) Flag {
	if flag, ok := f.cache.Get(name); ok {
		return flag
	}
	var flag, err = f.load(ctx, name)
	if err != nil {
		log.WithFields(log.Fields{"flag": name, "err": err}).Warn("failed to load launch flag")
		return Flag{}
	}
	f.cache.Add(name, flag)
	return flag
}

// Enabled reports whether |name| is currently on.
func (f *Flags) Enabled(ctx context.Context, name string) bool {
	return f.Lookup(ctx, name).Enabled
}

// Cap returns the integer value of |name| if the flag is enabled and one
// is set.
func (f *Flags) Cap(ctx context.Context, name string) (int64, bool) {
	var flag = f.Lookup(ctx, name)
	if !flag.Enabled || flag.IntValue == nil {
		return 0, false
	}
	return *flag.IntValue, true
}

// Invalidate drops cached values, forcing the next Lookup to reload.
func (f *Flags) Invalidate() { f.cache.Purge() }

// SetFlag upserts a flag row. Used by the operator CLI.
func SetFlag(ctx context.Context, q Querier, name string, enabled bool, intValue *int64) error {
	var _, err = q.Exec(ctx,
		`INSERT INTO launch_flags (flag, enabled, int_value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (flag) DO UPDATE
		 SET enabled = EXCLUDED.enabled, int_value = EXCLUDED.int_value, updated_at = now()`,
		name, enabled, intValue)
	return err
}

// NamedFlag is a flag row read back for listing.
type NamedFlag struct {
	Name string
	Flag
}

// ListFlags returns every launch flag row, ordered by name.
func ListFlags(ctx context.Context, q Querier) ([]NamedFlag, error) {
	rows, err := q.Query(ctx,
		`SELECT flag, enabled, int_value FROM launch_flags ORDER BY flag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NamedFlag
	for rows.Next() {
		var f NamedFlag
		if err = rows.Scan(&f.Name, &f.Enabled, &f.IntValue); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const flagCacheTTL = 5 * time.Second
