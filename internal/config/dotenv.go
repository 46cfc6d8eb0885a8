package config

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// loadDotEnv loads KEY=VALUE pairs from a dotenv file into the process environment.
// A missing file is not an error. Variables already set in the environment win.
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	pairs, err := parseDotEnv(f)
	if err != nil {
		return err
	}
	for _, kv := range pairs {
		if os.Getenv(kv[0]) != "" {
			continue
		}
		_ = os.Setenv(kv[0], kv[1])
	}
	return nil
}

// parseDotEnv returns pairs in file order.
//
// Rules:
// - Empty lines and lines starting with # are ignored.
// - "export KEY=VALUE" is supported.
// - Quoted values keep everything between the quotes, including '#'.
// - Unquoted values drop a trailing " # comment".
func parseDotEnv(r io.Reader) ([][2]string, error) {
	var pairs [][2]string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		pairs = append(pairs, [2]string{k, dotEnvValue(strings.TrimSpace(v))})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

func dotEnvValue(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') {
		if end := strings.IndexByte(v[1:], v[0]); end >= 0 {
			return v[1 : end+1]
		}
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}
