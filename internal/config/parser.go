package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ParseFile reads and parses a dircproxy configuration file (spec.md §6):
// line-oriented, '#' comments, bare-word or double-quoted ("\"" escaped)
// strings, and "connection { ... }" blocks. A leading "~/" in path-valued
// keys is expanded against $HOME.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a configuration stream.
func Parse(r io.Reader) (*Config, error) {
	cfg := defaultConfig()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	lineNo := 0
	var cur *ConnectionClass

	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		fields, err := tokenize(line)
		if err != nil {
			return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
		}
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "}" {
			if cur == nil {
				return nil, fmt.Errorf("config: line %d: unmatched '}'", lineNo)
			}
			cfg.Classes = append(cfg.Classes, cur)
			cur = nil
			continue
		}

		if fields[0] == "connection" {
			if cur != nil {
				return nil, fmt.Errorf("config: line %d: nested connection block", lineNo)
			}
			if len(fields) >= 3 && fields[len(fields)-1] == "{" {
				cur = newConnectionClass(fields[1])
			} else if len(fields) >= 2 && fields[1] == "{" {
				cur = newConnectionClass("")
			} else {
				return nil, fmt.Errorf("config: line %d: expected 'connection { ... }'", lineNo)
			}
			continue
		}

		key := fields[0]
		args := fields[1:]
		if cur != nil {
			if err := applyClassKey(cur, key, args); err != nil {
				return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
			}
			continue
		}
		if err := applyTopKey(cfg, key, args); err != nil {
			return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, fmt.Errorf("config: unterminated connection block")
	}
	return cfg, nil
}

func newConnectionClass(name string) *ConnectionClass {
	return &ConnectionClass{
		Name:            name,
		ServerRetry:     60 * time.Second,
		PingTimeout:     300 * time.Second,
		ChannelRejoin:   60 * time.Second,
		DCCProxyTimeout: 150 * time.Second,
	}
}

func defaultConfig() *Config {
	return &Config{
		ListenPort:     57000,
		ClientTimeout:  300 * time.Second,
		ConnectTimeout: 60 * time.Second,
		DNSTimeout:     60 * time.Second,
	}
}

func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case '\\':
			if inQuote {
				i++
			}
		case '#':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

// tokenize splits a line into whitespace-separated fields, honoring
// double-quoted strings with backslash escapes, matching the original
// cfgfile.c lexer described in spec.md §6.
func tokenize(line string) ([]string, error) {
	var fields []string
	var b strings.Builder
	inQuote := false
	have := false

	flush := func() {
		if have {
			fields = append(fields, b.String())
			b.Reset()
			have = false
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(line):
			i++
			b.WriteByte(line[i])
			have = true
		case c == '"':
			inQuote = !inQuote
			have = true
		case !inQuote && (c == ' ' || c == '\t'):
			flush()
		default:
			b.WriteByte(c)
			have = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quoted string")
	}
	flush()
	return fields, nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "true", "t", "1":
		return true, nil
	case "no", "n", "false", "f", "0":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", s)
	}
}

func parseDurationSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// parseThrottle parses "N" or "N:S" (spec.md §6 server_throttle).
func parseThrottle(s string) (bytes int, period time.Duration, err error) {
	parts := strings.SplitN(s, ":", 2)
	bytes, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 1 {
		return bytes, time.Second, nil
	}
	secs, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return bytes, time.Duration(secs) * time.Second, nil
}

func parseServerSpec(s string) (ServerSpec, error) {
	parts := strings.SplitN(s, ":", 3)
	spec := ServerSpec{Host: parts[0], Port: 6667}
	if len(parts) >= 2 && parts[1] != "" {
		p, err := strconv.Atoi(parts[1])
		if err != nil {
			return ServerSpec{}, fmt.Errorf("bad server port in %q: %w", s, err)
		}
		spec.Port = p
	}
	if len(parts) == 3 {
		spec.Password = parts[2]
	}
	return spec, nil
}
