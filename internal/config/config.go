package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/bonecast/internal/scenefile"
	"github.com/zsiec/bonecast/internal/transport"
)

// Setting keys.
const (
	KeyGlobalTransform = "ENABLE_GLOBAL_TRANSFORMATION"
	KeyHost            = "HOST"
	KeyPort            = "PORT"
	KeyTransport       = "TRANSPORT"
	KeySourceFile      = "SOURCE_FILE"
	KeyBaseModelFile   = "BASE_MODEL_FILE"
	KeyExportFile      = "EXPORT_FILE"
	KeyExportFormat    = "EXPORT_FORMAT"
	KeyReceiveTimeout  = "RECEIVE_TIMEOUT"
	KeyStartTimeout    = "START_TIMEOUT"
	KeySendInterval    = "SEND_INTERVAL"
	KeySendEndMarker   = "SEND_END_MARKER"
	KeyQUICFingerprint = "QUIC_CERT_FINGERPRINT"
	KeyLogLevel        = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8888
	DefaultReceiveTimeout = 3 * time.Second
	DefaultSendInterval   = 500 * time.Microsecond
)

// Config is the typed session configuration.
type Config struct {
	GlobalTransform bool
	Host            string
	Port            int
	Transport       transport.Kind

	SourceFile    string
	BaseModelFile string
	ExportFile    string
	ExportFormat  scenefile.Format

	// ReceiveTimeout bounds the wait for every datagram after the first.
	ReceiveTimeout time.Duration
	// StartTimeout bounds the wait for the first datagram; zero waits
	// until cancelled.
	StartTimeout   time.Duration
	SendInterval   time.Duration
	SendEndMarker  bool

	QUICFingerprint string
	LogLevel        slog.Level
}

// Default returns the configuration used for absent keys.
func Default() Config {
	return Config{
		GlobalTransform: true,
		Host:            DefaultHost,
		Port:            DefaultPort,
		Transport:       transport.KindUDP,
		ExportFormat:    scenefile.FormatJSON,
		ReceiveTimeout:  DefaultReceiveTimeout,
		SendInterval:    DefaultSendInterval,
		LogLevel:        slog.LevelInfo,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// FromStore reads every known key, falling back to Default for absent or
// unparsable values. Enumerated values that do not parse are errors.
func FromStore(s Store) (Config, error) {
	d := Default()
	c := Config{
		GlobalTransform: s.Bool(KeyGlobalTransform, d.GlobalTransform),
		Host:            s.String(KeyHost, d.Host),
		Port:            s.Int(KeyPort, d.Port),
		SourceFile:      s.String(KeySourceFile, ""),
		BaseModelFile:   s.String(KeyBaseModelFile, ""),
		ExportFile:      s.String(KeyExportFile, ""),
		ReceiveTimeout:  s.Duration(KeyReceiveTimeout, d.ReceiveTimeout),
		StartTimeout:    s.Duration(KeyStartTimeout, d.StartTimeout),
		SendInterval:    s.Duration(KeySendInterval, d.SendInterval),
		SendEndMarker:   s.Bool(KeySendEndMarker, d.SendEndMarker),
		QUICFingerprint: s.String(KeyQUICFingerprint, ""),
	}

	var err error
	if c.Transport, err = transport.ParseKind(s.String(KeyTransport, string(d.Transport))); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyTransport, err)
	}
	if c.ExportFormat, err = scenefile.ParseFormat(s.String(KeyExportFormat, string(d.ExportFormat))); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyExportFormat, err)
	}
	if c.LogLevel, err = ParseLevel(s.String(KeyLogLevel, "info")); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}
	return c, nil
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}

// Validate reports every problem with c that would stop a session.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s %d out of range", KeyPort, c.Port))
	}
	if c.Host == "" {
		errs = append(errs, fmt.Errorf("%s is empty", KeyHost))
	}
	if _, err := transport.ParseKind(string(c.Transport)); err != nil {
		errs = append(errs, err)
	}
	if _, err := scenefile.ParseFormat(string(c.ExportFormat)); err != nil {
		errs = append(errs, err)
	}
	if c.ReceiveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", KeyReceiveTimeout, c.ReceiveTimeout))
	}
	if c.StartTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %v", KeyStartTimeout, c.StartTimeout))
	}
	if c.SendInterval < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %v", KeySendInterval, c.SendInterval))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
