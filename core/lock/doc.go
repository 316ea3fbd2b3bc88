// Package lock provides per-key critical sections.
//
// The engine takes one lock per record so that candidate emission and commits
// touching the same record are serialized. Local is an in-process keyed mutex;
// Redis spreads the same guarantee across processes with bsm/redislock when a Redis
// URL is configured.
//
// # Usage
//
//	locker, err := lock.New(cfg.Redis)
//	release, err := locker.Obtain(ctx, "record:42")
//	if err != nil {
//	    return err
//	}
//	defer release()
package lock
