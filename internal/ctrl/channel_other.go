//go:build !linux

package ctrl

import "errors"

// OpenChannel is unavailable on this platform
func OpenChannel(path string) (Channel, error) {
	return nil, errors.New("the bcache control device is only available on linux")
}
