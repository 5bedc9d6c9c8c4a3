//go:build linux

package mdns

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	avahiService    = "org.freedesktop.Avahi"
	avahiServer     = avahiService + ".Server"
	avahiEntryGroup = avahiService + ".EntryGroup"
)

// DBusPublisher publishes services through Avahi's DBus interface
type DBusPublisher struct {
	conn           *dbus.Conn
	entryGroupPath dbus.ObjectPath
}

// NewDBusPublisher connects to the system bus
func NewDBusPublisher() (*DBusPublisher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	return &DBusPublisher{
		conn: conn,
	}, nil
}

// txtBytes encodes TXT records as the aay Avahi expects.
func txtBytes(records []string) [][]byte {
	out := make([][]byte, len(records))
	for i, txt := range records {
		out[i] = []byte(txt)
	}
	return out
}

// PublishService adds service to a new entry group and commits it
func (p *DBusPublisher) PublishService(service *Service) error {
	server := p.conn.Object(avahiService, "/")

	var entryGroupPath dbus.ObjectPath
	err := server.Call(avahiServer+".EntryGroupNew", 0).Store(&entryGroupPath)
	if err != nil {
		return fmt.Errorf("failed to create entry group: %w", err)
	}
	p.entryGroupPath = entryGroupPath

	entryGroup := p.conn.Object(avahiService, entryGroupPath)

	// Parameters: interface, protocol, flags, name, type, domain, host, port, txt
	err = entryGroup.Call(
		avahiEntryGroup+".AddService",
		0,
		int32(-1), // all interfaces
		int32(-1), // IPv4 and IPv6
		uint32(0),
		service.Name,
		service.Type,
		service.Domain,
		service.Host,
		uint16(service.Port),
		txtBytes(service.TXTRecords),
	).Store()
	if err != nil {
		return fmt.Errorf("failed to add service: %w", err)
	}

	if err := entryGroup.Call(avahiEntryGroup+".Commit", 0).Store(); err != nil {
		return fmt.Errorf("failed to commit entry group: %w", err)
	}

	return nil
}

// Stop unpublishes the service and closes the bus connection
func (p *DBusPublisher) Stop() error {
	if p.conn == nil {
		return nil
	}
	defer func() {
		p.conn.Close()
		p.conn = nil
	}()

	if p.entryGroupPath != "" {
		entryGroup := p.conn.Object(avahiService, p.entryGroupPath)
		p.entryGroupPath = ""
		if err := entryGroup.Call(avahiEntryGroup+".Reset", 0).Store(); err != nil {
			return fmt.Errorf("failed to reset entry group: %w", err)
		}
		if err := entryGroup.Call(avahiEntryGroup+".Free", 0).Store(); err != nil {
			return fmt.Errorf("failed to free entry group: %w", err)
		}
	}
	return nil
}

// IsAvahiDBusAvailable checks if the Avahi daemon answers on the system bus
func IsAvahiDBusAvailable() bool {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false
	}
	// the system bus connection is shared, so it stays open

	var version string
	err = conn.Object(avahiService, "/").Call(avahiServer+".GetVersionString", 0).Store(&version)
	return err == nil
}
