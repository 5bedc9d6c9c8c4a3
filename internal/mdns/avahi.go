package mdns

import (
	"fmt"
	"os/exec"
	"strconv"
)

// Publisher publishes a service by running avahi-publish-service for as long
// as the registration should last.
type Publisher struct {
	cmd *exec.Cmd
}

// NewPublisher creates a new Avahi service publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

func publishArgs(service *Service) []string {
	args := []string{service.Name, service.Type, strconv.Itoa(service.Port)}
	if service.Domain != "" {
		args = append([]string{"--domain=" + service.Domain}, args...)
	}
	if service.Host != "" {
		args = append([]string{"--host=" + service.Host}, args...)
	}
	return append(args, service.TXTRecords...)
}

// Publish starts avahi-publish-service in the background
func (p *Publisher) Publish(service *Service) error {
	if _, err := exec.LookPath("avahi-publish-service"); err != nil {
		return fmt.Errorf("avahi-publish-service not found: %w (install avahi-utils)", err)
	}

	p.cmd = exec.Command("avahi-publish-service", publishArgs(service)...)
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start avahi-publish-service: %w", err)
	}

	return nil
}

// Stop stops the service publication
func (p *Publisher) Stop() error {
	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}
		// Wait for the process to exit
		_ = p.cmd.Wait()
		p.cmd = nil
	}
	return nil
}

// IsAvahiAvailable checks if avahi-publish-service is installed
func IsAvahiAvailable() bool {
	_, err := exec.LookPath("avahi-publish-service")
	return err == nil
}
