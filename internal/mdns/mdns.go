// Package mdns advertises the flopview HTTP service on the local network
// through Avahi.
package mdns

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/logging"
)

var (
	ErrBadTXTRecord = errors.New("TXT record must be key=value")
	ErrNoAvahi      = errors.New("avahi is not available")
)

// ServiceType is the DNS-SD type flopview registers under.
const ServiceType = "_http._tcp"

// Service represents an Avahi service registration
type Service struct {
	Name       string   // Service name (e.g., "Flopview")
	Type       string   // Service type (e.g., "_http._tcp")
	Port       int      // Port number
	Domain     string   // Domain (empty means "local")
	Host       string   // Hostname (optional, uses system hostname if empty)
	TXTRecords []string // TXT records (key=value pairs)
}

// Advertiser is a running service registration.
type Advertiser interface {
	Stop() error
}

// Options selects what to announce and how.
type Options struct {
	Name       string
	Port       int
	TXTRecords []string
	UseDBus    bool
}

// TXTRecords validates records and returns them sorted by key, the last
// value winning for a repeated key. extra entries are merged over records.
func TXTRecords(records []string, extra map[string]string) ([]string, error) {
	values := make(map[string]string)
	for _, r := range records {
		key, value, ok := strings.Cut(r, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadTXTRecord, r)
		}
		values[key] = value
	}
	for k, v := range extra {
		values[k] = v
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+values[k])
	}
	return out, nil
}

// Announce publishes an HTTP service, preferring Avahi's DBus API when
// opts.UseDBus is set and falling back to avahi-publish-service.
//
// Example usage:
//
//	adv, err := mdns.Announce(mdns.Options{Name: "Flopview", Port: 8080})
//	if err != nil {
//		return err
//	}
//	defer adv.Stop()
func Announce(opts Options) (Advertiser, error) {
	txt, err := TXTRecords(opts.TXTRecords, map[string]string{"port": fmt.Sprint(opts.Port)})
	if err != nil {
		return nil, err
	}
	service := &Service{
		Name:       opts.Name,
		Type:       ServiceType,
		Port:       opts.Port,
		TXTRecords: txt,
	}

	if opts.UseDBus && IsAvahiDBusAvailable() {
		p, err := NewDBusPublisher()
		if err == nil {
			if err = p.PublishService(service); err == nil {
				logging.L().Info("Advertising service via DBus", zap.String("url", ServiceURL(service)))
				return p, nil
			}
			p.Stop()
		}
		logging.L().Warn("DBus publish failed, trying avahi-publish-service", zap.Error(err))
	}

	if !IsAvahiAvailable() {
		return nil, ErrNoAvahi
	}
	p := NewPublisher()
	if err := p.Publish(service); err != nil {
		return nil, err
	}
	logging.L().Info("Advertising service via avahi-publish-service", zap.String("url", ServiceURL(service)))
	return p, nil
}

// ServiceURL constructs the URL clients reach the service at
func ServiceURL(service *Service) string {
	protocol := "http"
	if strings.Contains(service.Type, "https") {
		protocol = "https"
	}

	if service.Domain == "local" || service.Domain == "" {
		hostname := service.Host
		if hostname == "" {
			hostname, _ = os.Hostname()
		}
		if hostname == "" {
			hostname = "localhost"
		}
		hostname = strings.TrimSuffix(hostname, ".local")
		return fmt.Sprintf("%s://%s.local:%d", protocol, hostname, service.Port)
	}

	host := service.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s.%s:%d", protocol, host, service.Domain, service.Port)
}
