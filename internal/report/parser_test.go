package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/errors"
)

const sampleScan = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" version="7.94">
  <host>
    <address addr="192.168.1.10" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="22">
        <state state="open"/>
        <service name="ssh" product="OpenSSH" version="8.9p1"/>
      </port>
      <port protocol="tcp" portid="80">
        <state state="open"/>
        <service name="http" product="nginx" version="1.18.0"/>
      </port>
      <port protocol="tcp" portid="443">
        <state state="closed"/>
        <service name="https"/>
      </port>
    </ports>
  </host>
  <host>
    <address addr="192.168.1.20" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="3306">
        <state state="open"/>
        <service name="mysql" version="8.0.32"/>
      </port>
    </ports>
  </host>
</nmaprun>`

func TestParse(t *testing.T) {
	services, err := Parse([]byte(sampleScan))
	require.NoError(t, err)
	require.Len(t, services, 3)

	assert.Equal(t, ServiceObservation{
		IP:      "192.168.1.10",
		Port:    "22",
		Service: "ssh",
		Version: "8.9p1",
		Product: "OpenSSH",
	}, services[0])

	assert.Equal(t, "http", services[1].Service)
	assert.Equal(t, "80", services[1].Port)

	assert.Equal(t, "192.168.1.20", services[2].IP)
	assert.Equal(t, "mysql", services[2].Service)
}

func TestParseSkipsClosedPorts(t *testing.T) {
	services, err := Parse([]byte(sampleScan))
	require.NoError(t, err)
	for _, svc := range services {
		assert.NotEqual(t, "443", svc.Port)
	}
}

func TestParseSkipsHostsWithoutAddress(t *testing.T) {
	data := `<nmaprun>
  <host>
    <ports>
      <port protocol="tcp" portid="22">
        <state state="open"/>
        <service name="ssh"/>
      </port>
    </ports>
  </host>
</nmaprun>`

	services, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestParseEmptyAddrBecomesUnknown(t *testing.T) {
	data := `<nmaprun>
  <host>
    <address addr="" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="22">
        <state state="open"/>
        <service name="ssh"/>
      </port>
    </ports>
  </host>
</nmaprun>`

	services, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Unknown", services[0].IP)
}

func TestParseSkipsUnnamedServices(t *testing.T) {
	data := `<nmaprun>
  <host>
    <address addr="10.0.0.1" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="9999">
        <state state="open"/>
        <service version="1.0"/>
      </port>
    </ports>
  </host>
</nmaprun>`

	services, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestParsePrefersIPv4Address(t *testing.T) {
	data := `<nmaprun>
  <host>
    <address addr="aa:bb:cc:dd:ee:ff" addrtype="mac"/>
    <address addr="10.0.0.5" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="21">
        <state state="open"/>
        <service name="ftp"/>
      </port>
    </ports>
  </host>
</nmaprun>`

	services, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "10.0.0.5", services[0].IP)
}

func TestParseMalformedXML(t *testing.T) {
	_, err := Parse([]byte("<nmaprun><host>"))
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}

func TestParseEmptyReport(t *testing.T) {
	services, err := Parse([]byte("<nmaprun></nmaprun>"))
	require.NoError(t, err)
	assert.NotNil(t, services)
	assert.Empty(t, services)
}
