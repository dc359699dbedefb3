package dbus

import (
	"errors"
	"net"
	"strconv"
)

func init() {
	transports["tcp"] = newTCPTransport
}

// newTCPTransport dials the "tcp:" transport: a plain TCP socket with no
// ancillary-data channel, so unix_fd passing is never available on it.
func newTCPTransport(addr Address) (transport, error) {
	conn, err := dialTCP(addr)
	if err != nil {
		return nil, err
	}
	return genericTransport{conn}, nil
}

func dialTCP(addr Address) (*net.TCPConn, error) {
	host, ok := addr.Param("host")
	if !ok || host == "" {
		return nil, AddressError("tcp: address is missing a host key")
	}
	port, ok := addr.Param("port")
	if !ok || port == "" {
		return nil, AddressError("tcp: address is missing a port key")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, AddressError("tcp: invalid port '" + port + "'")
	}
	network := "tcp"
	if family, ok := addr.Param("family"); ok {
		switch family {
		case "ipv4":
			network = "tcp4"
		case "ipv6":
			network = "tcp6"
		default:
			return nil, AddressError("tcp: invalid family '" + family + "'")
		}
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, errors.New("dbus: tcp: host not found: " + host)
	}
	return net.DialTCP(network, nil, &net.TCPAddr{IP: ips[0], Port: portNum})
}
