//go:build !linux

package mdns

import "errors"

var errNoDBus = errors.New("DBus-based Avahi publishing is only available on Linux")

// DBusPublisher stub for non-Linux platforms
type DBusPublisher struct{}

// NewDBusPublisher returns an error on non-Linux platforms
func NewDBusPublisher() (*DBusPublisher, error) {
	return nil, errNoDBus
}

// PublishService returns an error on non-Linux platforms
func (p *DBusPublisher) PublishService(service *Service) error {
	return errNoDBus
}

// Stop does nothing on non-Linux platforms
func (p *DBusPublisher) Stop() error {
	return nil
}

// IsAvahiDBusAvailable always returns false on non-Linux platforms
func IsAvahiDBusAvailable() bool {
	return false
}
