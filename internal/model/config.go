package model

import (
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Log destinations.
const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

// Config is the explicit service configuration, passed into constructors.
type Config struct {
	Version  int                `json:"version" yaml:"version"` // fixed 0 for now
	Server   Server             `json:"server" yaml:"server"`
	Scan     ScanDefaults       `json:"scan" yaml:"scan"`
	History  History            `json:"history" yaml:"history"`
	Registry Registry           `json:"registry" yaml:"registry"`
	Engines  []SubprocessEngine `json:"engines,omitempty" yaml:"engines,omitempty"`
	Service  Service            `json:"service" yaml:"service"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

// ScanDefaults are the orchestrator defaults, overridable per submission.
type ScanDefaults struct {
	Workers          int   `json:"workers" yaml:"workers"` // pool size, 1..32
	TimeoutMs        int64 `json:"timeout_ms" yaml:"timeout_ms"`
	MaxFileSizeBytes int64 `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
}

// History locates the append-only result store.
type History struct {
	Path string `json:"path" yaml:"path"`
}

// Registry holds engine discovery settings.
type Registry struct {
	RefreshEvery string `json:"refresh_every" yaml:"refresh_every"`
}

// SubprocessEngine declares an external engine binary speaking the detect
// protocol on stdin/stdout.
type SubprocessEngine struct {
	Name    string   `json:"name" yaml:"name"`
	Path    string   `json:"path" yaml:"path"`
	Version string   `json:"version" yaml:"version"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// Service holds logging settings.
type Service struct {
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Log     string `json:"log" yaml:"log"` // "stderr"|"stdout"|"discard"
}

// Options converts the configured defaults into ScanOptions.
func (s ScanDefaults) Options() ScanOptions {
	o := DefaultScanOptions()
	o.TimeoutMs = s.TimeoutMs
	o.MaxFileSizeBytes = s.MaxFileSizeBytes
	return o
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Server:  Server{Addr: ":8080"},
		Scan: ScanDefaults{
			Workers:          4,
			TimeoutMs:        30_000,
			MaxFileSizeBytes: 100 * 1024 * 1024,
		},
		History: History{Path: "typesift.db"},
		Service: Service{Log: LogStderr},
	}
}

// LoadConfig validates YAML from r against the CUE schema and decodes it.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
