package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// API and service errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrProviderNotFound = fmt.Errorf("catalog provider not registered")

	// Persistence and coordination errors
	ErrNotFound         = fmt.Errorf("record not found")
	ErrStoreUnavailable = fmt.Errorf("persistence store unavailable")
	ErrLockUnavailable  = fmt.Errorf("lock store unavailable")
	ErrJobNotFound      = fmt.Errorf("job not found")
	ErrValidation       = fmt.Errorf("validation failed")

	// External tool errors
	ErrProbeFailed       = fmt.Errorf("media probe failed")
	ErrFingerprintFailed = fmt.Errorf("fingerprint failed")
	ErrDownloadFailed    = fmt.Errorf("download failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
