package discovery

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EndpointKind distinguishes the three ways a postmaster might be reached,
// tried in the order the reference tool tries them: unix socket, then
// TCP/IPv4, then TCP/IPv6.
type EndpointKind int

const (
	EndpointUnix EndpointKind = iota
	EndpointTCP4
	EndpointTCP6
)

// Endpoint is one resolved, connectable address for a postmaster.
type Endpoint struct {
	Kind EndpointKind
	Host string // directory for EndpointUnix, IP literal otherwise
	Port int
}

// ConnString renders a libpq keyword/value connection string. No explicit
// user/password is set: pgx's libpq-compatible parser falls back to
// PGUSER/PGPASSWORD/~/.pgpass the same way psql would, which is the right
// behavior for a program that deliberately doesn't read credentials config
// itself (out of scope per this program's design).
func (e Endpoint) ConnString() string {
	return fmt.Sprintf("host=%s port=%d dbname=postgres sslmode=disable connect_timeout=3", e.Host, e.Port)
}

// ResolveEndpoints finds every listening socket owned by the postmaster
// whose data directory is workDir, in unix->tcp4->tcp6 precedence order.
// Ownership is established by cross-referencing each candidate socket's
// inode against the postmaster's own open file descriptors
// (/proc/[pid]/fd/*), since /proc/net/{unix,tcp,tcp6} alone don't carry a
// listening process's pid.
func ResolveEndpoints(workDir string) ([]Endpoint, error) {
	pid, err := postmasterPIDForWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	owned, err := ownedSocketInodes(pid)
	if err != nil {
		return nil, err
	}

	var out []Endpoint
	if eps, err := parseProcNetUnix(owned); err == nil {
		out = append(out, eps...)
	}
	if eps, err := parseProcNetTCP("/proc/net/tcp", EndpointTCP4, owned); err == nil {
		out = append(out, eps...)
	}
	if eps, err := parseProcNetTCP("/proc/net/tcp6", EndpointTCP6, owned); err == nil {
		out = append(out, eps...)
	}
	return out, nil
}

func postmasterPIDForWorkDir(workDir string) (int, error) {
	pms, err := findPostmasters()
	if err != nil {
		return 0, err
	}
	for _, pm := range pms {
		if pm.workDir == workDir {
			return int(pm.pid), nil
		}
	}
	return 0, fmt.Errorf("no postmaster found for %s", workDir)
}

// ownedSocketInodes lists the inode numbers of every socket fd open under
// /proc/[pid]/fd, by reading each fd's symlink target ("socket:[12345]").
func ownedSocketInodes(pid int) (map[string]bool, error) {
	dir := filepath.Join("/proc", strconv.Itoa(pid), "fd")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]bool)
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if strings.HasPrefix(target, "socket:[") {
			inode := strings.TrimSuffix(strings.TrimPrefix(target, "socket:["), "]")
			owned[inode] = true
		}
	}
	return owned, nil
}

// parseProcNetUnix scans /proc/net/unix for Postgres listening sockets
// (path matching ".s.PGSQL.<port>") owned by the pid whose fds produced
// the `owned` inode set.
func parseProcNetUnix(owned map[string]bool) ([]Endpoint, error) {
	f, err := os.Open("/proc/net/unix")
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []Endpoint
	sc := bufio.NewScanner(f)
	sc.Scan() // header line
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 8 {
			continue
		}
		inode := fields[6]
		path := fields[7]
		if !owned[inode] {
			continue
		}
		base := filepath.Base(path)
		if !strings.HasPrefix(base, ".s.PGSQL.") {
			continue
		}
		portStr := strings.TrimPrefix(base, ".s.PGSQL.")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		out = append(out, Endpoint{Kind: EndpointUnix, Host: filepath.Dir(path), Port: port})
	}
	return out, sc.Err()
}

// parseProcNetTCP scans /proc/net/tcp or /proc/net/tcp6 for LISTEN-state
// sockets (st == "0A") owned by the pid whose fds produced the `owned`
// inode set, decoding the hex local_address field. The kernel encodes each
// 32-bit word of the address in host byte order, which on every
// Linux/Postgres-supported architecture is little-endian — so an IPv4
// address's 8 hex chars are the 4 bytes in reverse order, and an IPv6
// address's 32 hex chars are four such reversed 32-bit words concatenated.
// This exact decode is one of this program's testable properties.
func parseProcNetTCP(path string, kind EndpointKind, owned map[string]bool) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []Endpoint
	sc := bufio.NewScanner(f)
	sc.Scan() // header line
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 10 {
			continue
		}
		if fields[3] != "0A" { // TCP_LISTEN
			continue
		}
		inode := fields[9]
		if !owned[inode] {
			continue
		}

		addrPort := strings.SplitN(fields[1], ":", 2)
		if len(addrPort) != 2 {
			continue
		}
		ip, err := decodeHexAddr(addrPort[0])
		if err != nil {
			continue
		}
		portVal, err := strconv.ParseUint(addrPort[1], 16, 32)
		if err != nil {
			continue
		}

		host := ip.String()
		if ip.IsUnspecified() {
			host = "127.0.0.1"
			if kind == EndpointTCP6 {
				host = "::1"
			}
		}
		out = append(out, Endpoint{Kind: kind, Host: host, Port: int(portVal)})
	}
	return out, sc.Err()
}

// decodeHexAddr turns /proc/net/tcp[6]'s hex address field into a net.IP,
// reversing each 4-byte (32-bit) word's byte order.
func decodeHexAddr(hexStr string) (net.IP, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid address field length %d", len(raw))
	}

	out := make([]byte, len(raw))
	for word := 0; word < len(raw); word += 4 {
		out[word+0] = raw[word+3]
		out[word+1] = raw[word+2]
		out[word+2] = raw[word+1]
		out[word+3] = raw[word+0]
	}
	return net.IP(out), nil
}
