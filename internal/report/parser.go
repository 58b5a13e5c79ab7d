package report

import (
	"encoding/xml"

	"github.com/patchpilot/patchpilot/internal/errors"
)

// nmap XML elements, limited to what service extraction needs.
type nmapRun struct {
	Hosts []nmapHost `xml:"host"`
}

type nmapHost struct {
	Addresses []nmapAddress `xml:"address"`
	Ports     nmapPorts     `xml:"ports"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type nmapPorts struct {
	Ports []nmapPort `xml:"port"`
}

type nmapPort struct {
	Protocol string      `xml:"protocol,attr"`
	PortID   string      `xml:"portid,attr"`
	State    nmapState   `xml:"state"`
	Service  nmapService `xml:"service"`
}

type nmapState struct {
	State string `xml:"state,attr"`
}

type nmapService struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
	Product string `xml:"product,attr"`
}

// Parse extracts open, named services from nmap XML scan output.
//
// Hosts without an address element are skipped, as are ports that are not
// open or whose service element carries no name. An address element whose
// addr attribute is empty keeps the host, with "Unknown" as its address.
// Malformed XML yields a ParseError.
func Parse(data []byte) ([]ServiceObservation, error) {
	var run nmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil, errors.NewParseError("invalid XML scan report", err)
	}

	services := make([]ServiceObservation, 0)
	for _, host := range run.Hosts {
		if len(host.Addresses) == 0 {
			continue
		}
		addr := hostAddress(host)
		if addr == "" {
			addr = "Unknown"
		}

		for _, port := range host.Ports.Ports {
			if port.State.State != "open" {
				continue
			}
			if port.Service.Name == "" {
				continue
			}

			services = append(services, ServiceObservation{
				IP:      addr,
				Port:    port.PortID,
				Service: port.Service.Name,
				Version: port.Service.Version,
				Product: port.Service.Product,
			})
		}
	}

	return services, nil
}

// hostAddress picks the host address, preferring IPv4 over other types.
// The host is known to carry at least one address element.
func hostAddress(host nmapHost) string {
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" {
			return addr.Addr
		}
	}
	return host.Addresses[0].Addr
}
