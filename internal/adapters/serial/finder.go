package serial

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DefaultKeywords identify common USB-to-serial bridges by name or id
var DefaultKeywords = []string{
	"arduino",
	"ch340",
	"cp210",
	"ftdi",
	"usb-serial",
	"usb serial",
	"2341", // Arduino VID
	"1a86", // QinHeng CH340 VID
	"10c4", // Silicon Labs CP210x VID
	"0403", // FTDI VID
}

// Finder picks out ports whose USB details match a keyword
type Finder struct {
	keywords []string
	list     func() ([]*enumerator.PortDetails, error)
}

// NewFinder creates a finder; nil keywords means DefaultKeywords
func NewFinder(keywords []string) *Finder {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Finder{
		keywords: lowered,
		list:     enumerator.GetDetailedPortsList,
	}
}

// FindPorts returns matching port names in enumeration order
func (f *Finder) FindPorts() ([]string, error) {
	details, err := f.list()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var found []string
	for _, d := range details {
		if d == nil || !f.matches(d) {
			continue
		}
		found = append(found, d.Name)
	}
	return found, nil
}

func (f *Finder) matches(d *enumerator.PortDetails) bool {
	haystack := strings.ToLower(strings.Join([]string{d.Name, d.VID, d.PID, d.Product, d.SerialNumber}, " "))
	for _, k := range f.keywords {
		if strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}
