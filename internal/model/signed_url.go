package model

// SignedURL is a time-limited capability for one object.
type SignedURL struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresAt int64  `json:"expires_at"`
}
