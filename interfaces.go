package bcache

import (
	"github.com/ehrlich-b/go-bcache/internal/ctrl"
	"github.com/ehrlich-b/go-bcache/internal/interfaces"
	"github.com/ehrlich-b/go-bcache/internal/logging"
	"github.com/ehrlich-b/go-bcache/internal/probe"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// Device is a target opened for one format operation
type Device = interfaces.Device

// DiscardDevice is a Device that supports TRIM/DISCARD
type DiscardDevice = interfaces.DiscardDevice

// DeviceInfo holds the facts gathered about a target before it is opened
type DeviceInfo = interfaces.DeviceInfo

// Superblock is the decoded on-disk superblock
type Superblock = uapi.Superblock

// Prober reports foreign signatures found on a device
type Prober = probe.Prober

// ControlChannel is an open handle on the bcache control device
type ControlChannel = ctrl.Channel

// Logger is the structured logger used throughout the package
type Logger = logging.Logger

// LogConfig configures NewLogger
type LogConfig = logging.Config

// Log levels for LogConfig
const (
	LogLevelDebug = logging.LevelDebug
	LogLevelInfo  = logging.LevelInfo
	LogLevelWarn  = logging.LevelWarn
	LogLevelError = logging.LevelError
)

// NewLogger creates a structured logger
func NewLogger(cfg *LogConfig) *Logger {
	return logging.NewLogger(cfg)
}
