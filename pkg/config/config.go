package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goph/emperror"
)

// Duration decodes toml strings like "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return emperror.Wrapf(err, "invalid duration %s", string(text))
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	Hostname       string   `toml:"hostname"`
	Port           int      `toml:"port"`
	Timeout        Duration `toml:"timeout"`
	PrivateKeys    []string `toml:"privatekeys"`
	KnownHosts     string   `toml:"knownhosts"`
	MaxPacketSize  int      `toml:"maxpacketsize"`
	MaxConcurrency int      `toml:"maxconcurrency"`
	LogFile        string   `toml:"logfile"`
	LogLevel       string   `toml:"loglevel"`
}

func Default() *Config {
	return &Config{
		Hostname: "localhost",
		Port:     22,
		Timeout:  Duration{10 * time.Second},
		LogLevel: "INFO",
	}
}

// Load decodes the toml file fp of fSys into conf. Keys missing in the file
// keep the value conf already has.
func Load(fSys fs.FS, fp string, conf *Config) error {
	data, err := fs.ReadFile(fSys, fp)
	if err != nil {
		return emperror.Wrapf(err, "cannot read file [%v] %s", fSys, fp)
	}
	if _, err := toml.Decode(string(data), conf); err != nil {
		return emperror.Wrapf(err, "error loading config file %v", fp)
	}
	return nil
}

// LoadFile reads the local file fp on top of the defaults and applies the
// environment.
func LoadFile(fp string) (*Config, error) {
	conf := Default()
	if fp != "" {
		abs, err := filepath.Abs(fp)
		if err != nil {
			return nil, emperror.Wrapf(err, "cannot resolve %s", fp)
		}
		if err := Load(os.DirFS(filepath.Dir(abs)), filepath.Base(abs), conf); err != nil {
			return nil, err
		}
	}
	if err := conf.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return conf, nil
}

// ApplyEnv overrides the values set in conf with the SFTP_* variables found
// by lookup.
func (conf *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, dst := range map[string]*string{
		"SFTP_USERNAME":   &conf.Username,
		"SFTP_PASSWORD":   &conf.Password,
		"SFTP_HOSTNAME":   &conf.Hostname,
		"SFTP_KNOWNHOSTS": &conf.KnownHosts,
		"SFTP_LOGLEVEL":   &conf.LogLevel,
		"SFTP_LOGFILE":    &conf.LogFile,
	} {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	if v, ok := lookup("SFTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return emperror.Wrapf(err, "invalid SFTP_PORT %s", v)
		}
		conf.Port = port
	}
	if v, ok := lookup("SFTP_TIMEOUT"); ok {
		if err := conf.Timeout.UnmarshalText([]byte(v)); err != nil {
			return emperror.Wrap(err, "invalid SFTP_TIMEOUT")
		}
	}
	return nil
}
