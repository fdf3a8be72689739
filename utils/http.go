// utils/http.go (shared client)
package utils

import (
	"net/http"
	"time"
)

var HTTPClient = &http.Client{
	Timeout: 300 * time.Second, // matches can run for minutes
}
