// Package config reads the INI-style cluster configuration file: one
// section per cluster, flat key=value pairs, matching
// original_source/pg_view/utils.py's use of Python's stdlib ConfigParser.
// No INI-parsing library appears anywhere in the retrieved example pack,
// so this is a direct bufio scan, the same way the reference tool leans on
// its own standard library rather than a third-party format parser for
// this one file.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ClusterConfig is one [section]'s worth of connection settings; a key
// absent from the section leaves its field empty. The main loop does not
// apply these settings to discovery or connection.
type ClusterConfig struct {
	Name     string
	Host     string
	Port     string
	User     string
	Dbname   string
	Password string
}

// ReadFile opens path and parses it with Parse.
func ReadFile(path string) ([]ClusterConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse reads an INI-style stream into a slice of cluster sections, in
// declaration order. Blank lines and lines starting with '#' or ';' are
// ignored, matching ConfigParser's comment conventions.
func Parse(r io.Reader) ([]ClusterConfig, error) {
	var (
		out     []ClusterConfig
		current *ClusterConfig
	)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, fmt.Errorf("config: line %d: empty section name", lineNo)
			}
			out = append(out, ClusterConfig{Name: name})
			current = &out[len(out)-1]
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("config: line %d: key=value outside of any [section]", lineNo)
		}

		key, value, ok := splitKV(line)
		if !ok {
			return nil, fmt.Errorf("config: line %d: malformed line %q", lineNo, line)
		}

		switch strings.ToLower(key) {
		case "host":
			current.Host = value
		case "port":
			current.Port = value
		case "user":
			current.User = value
		case "dbname":
			current.Dbname = value
		case "password":
			current.Password = value
		default:
			// Unknown keys are ignored rather than rejected, so newer
			// config files still load against an older binary.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func splitKV(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}
