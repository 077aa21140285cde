package env

import "os"

func IsGithubAction() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

// IsConcurrencyLockDisabled reports whether runs should skip the cache lock,
// for environments where advisory file locks are unsupported.
func IsConcurrencyLockDisabled() bool {
	return os.Getenv("VENDORPATCH_CONCURRENCY_LOCK_DISABLED") == "true"
}
