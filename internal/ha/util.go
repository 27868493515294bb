package ha

import (
	"net"
	"strconv"
)

// splitHostPort splits an "address" of the servers table's shape
// (host:port) into the form mysqlconn.Conn.SwitchMaster expects. A missing
// or malformed port defaults to MySQL's standard 3306.
func splitHostPort(address string) (string, int) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return address, 3306
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 3306
	}
	return host, port
}
