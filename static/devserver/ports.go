package devserver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

const maxPort = 65535

// FindAvailablePorts returns count ports, starting the search at start, that
// can currently be bound on all interfaces.
func FindAvailablePorts(start, count int) ([]int, error) {
	if count <= 0 {
		return nil, nil
	}
	if start <= 0 || start > maxPort {
		return nil, fmt.Errorf("devserver: invalid start port %d", start)
	}
	ports := make([]int, 0, count)
	for p := start; p <= maxPort && len(ports) < count; p++ {
		if portFree(p) {
			ports = append(ports, p)
		}
	}
	if len(ports) < count {
		return ports, errors.New("devserver: not enough free ports")
	}
	return ports, nil
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
