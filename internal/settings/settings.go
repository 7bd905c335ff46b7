// Package settings loads the kiosk settings file, bootstrapping it with
// defaults on first run. Loading never fails: every problem is logged and
// resolved to the default record.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

const (
	// KeyServerURL is the only key the launcher interprets.
	KeyServerURL = "server_url"
	// DefaultServerURL is written on first run and used whenever the file is unusable.
	DefaultServerURL = "https://baseballpi.pro"
)

// Settings is the decoded settings record. Keys other than server_url are
// kept untouched in Extra.
type Settings struct {
	ServerURL string
	Extra     map[string]json.RawMessage
}

// Default returns the settings used on first run and after any failure.
func Default() Settings {
	return Settings{ServerURL: DefaultServerURL}
}

// MarshalJSON writes server_url alongside the extra keys.
func (s Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+1)
	for k, v := range s.Extra {
		out[k] = v
	}
	out[KeyServerURL] = s.ServerURL
	return json.Marshal(out)
}

// ParseError reports a settings file that is not a JSON object.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse settings %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError reports a settings file that could not be read or written.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s settings %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store reads one settings file.
type Store struct {
	path string
	log  *zap.Logger
}

// NewStore returns a store for the file at path.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log.With(zap.String("component", "settings"))}
}

// Load is shorthand for NewStore(path, log).Load().
func Load(path string, log *zap.Logger) Settings {
	return NewStore(path, log).Load()
}

// Path returns the file the store reads.
func (s *Store) Path() string { return s.path }

// Load returns the settings, creating the file with defaults when it does
// not exist. Parse and I/O failures are logged and yield Default().
func (s *Store) Load() Settings {
	st, err := s.Read()
	if err == nil {
		return st
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		s.log.Error("Error parsing settings file, using default settings", zap.Error(err))
		return Default()
	}

	if !errors.Is(err, fs.ErrNotExist) {
		s.log.Error("Error loading settings, using default settings", zap.Error(err))
		return Default()
	}

	s.log.Info("Settings file not found, creating default", zap.String("path", s.path))
	if err := s.bootstrap(); err != nil {
		s.log.Error("Failed to write default settings", zap.Error(err))
	}
	return Default()
}

// Read decodes the settings file without any fallback. A missing file is
// reported as an *IOError wrapping fs.ErrNotExist.
func (s *Store) Read() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, &IOError{Op: "read", Path: s.path, Err: err}
	}

	st, err := decode(data)
	if err != nil {
		return Settings{}, &ParseError{Path: s.path, Err: err}
	}

	if st.ServerURL == "" {
		if _, present := st.Extra[KeyServerURL]; present {
			s.log.Warn("server_url is not a non-empty string, using default",
				zap.ByteString("value", st.Extra[KeyServerURL]))
		}
		st.ServerURL = DefaultServerURL
	}
	delete(st.Extra, KeyServerURL)
	return st, nil
}

// decode parses a JSON object. A server_url that is not a string is left
// in Extra so the caller can report it.
func decode(data []byte) (Settings, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return Settings{}, err
	}
	if dec.More() {
		return Settings{}, errors.New("unexpected data after top-level object")
	}
	if raw == nil {
		return Settings{}, errors.New("top-level value is null, want object")
	}

	st := Settings{Extra: raw}
	if v, ok := raw[KeyServerURL]; ok {
		var url string
		if err := json.Unmarshal(v, &url); err == nil && url != "" {
			st.ServerURL = url
		}
	}
	return st, nil
}

// bootstrap creates the settings file with the default record. An existing
// file is never overwritten.
func (s *Store) bootstrap() error {
	data, err := json.MarshalIndent(map[string]string{KeyServerURL: DefaultServerURL}, "", "    ")
	if err != nil {
		return fmt.Errorf("encode default settings: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &IOError{Op: "create", Path: s.path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}
