package models

// Credentials are a connection's plaintext secrets, keyed by name (api_key,
// username, password, client_id, client_secret, token_url, ...). They exist
// only between a Vault decrypt and the adapter call that uses them.
type Credentials map[string]string

// Get returns the first non-empty value among keys.
func (c Credentials) Get(keys ...string) string {
	for _, k := range keys {
		if v := c[k]; v != "" {
			return v
		}
	}
	return ""
}
