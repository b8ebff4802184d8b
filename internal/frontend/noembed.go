//go:build !embed

package frontend

import "net/http"

// Handler returns nil unless the binary was built with -tags embed; the
// server then falls back to server.data_dir.
func Handler() http.Handler {
	return nil
}
