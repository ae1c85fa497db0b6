package transbase

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is what a client needs to connect and log in.
type Config struct {
	URL      string `yaml:"url" toml:"url"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	TypeCast *bool  `yaml:"typecast" toml:"typecast"` // enabled if not set
}

// TypeCastEnabled reports the initial type cast mode.
func (c Config) TypeCastEnabled() bool { return c.TypeCast == nil || *c.TypeCast }

var configFields = []string{"url", "user", "password", "typecast"}

// checkCredentials is the connect input rule shared by ParseConfig and
// Session.Connect: url and user are non-empty, password may be empty.
func checkCredentials(url, user string) error {
	if url == "" {
		return configError("connect requires a string url")
	}
	if user == "" {
		return configError("connect requires a string user")
	}
	return nil
}

// ParseConfig checks dynamic connect input. url, user and password must
// be present and strings, url and user non-empty, typecast is an
// optional bool.
func ParseConfig(m map[string]any) (Config, error) {
	if m == nil {
		return Config{}, configError("connect is missing config argument {url,user,password}")
	}

	res := Config{}
	for _, f := range []struct {
		key string
		dst *string
	}{{"url", &res.URL}, {"user", &res.User}, {"password", &res.Password}} {
		v, ok := m[f.key].(string)
		if !ok {
			return Config{}, configError("connect requires a string " + f.key)
		}
		*f.dst = v
	}
	if err := checkCredentials(res.URL, res.User); err != nil {
		return Config{}, err
	}

	if v, ok := m["typecast"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return Config{}, configError("typecast must be a bool")
		}
		res.TypeCast = &b
	}
	return res, nil
}

// LoadConfig reads a yaml (.yml, .yaml) or toml (.toml) file holding the
// Config fields. Unknown fields are rejected.
func LoadConfig(fname string) (Config, error) {
	data, err := os.ReadFile(fname) //nolint:gosec // config file name comes from the caller
	if err != nil {
		return Config{}, fmt.Errorf("can't read config %s: %w", fname, err)
	}

	m := map[string]any{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml"):
		if err = yaml.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
			return Config{}, fmt.Errorf("can't unmarshal yaml config %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err = toml.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("can't unmarshal toml config %s: %w", fname, err)
		}
	default:
		return Config{}, fmt.Errorf("unknown config format %s", fname)
	}

	errs := new(multierror.Error)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		known := false
		for _, f := range configFields {
			known = known || k == f
		}
		if !known {
			errs = multierror.Append(errs, fmt.Errorf("unknown field %q", k))
		}
	}
	if err = errs.ErrorOrNil(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", fname, err)
	}

	return ParseConfig(m)
}
