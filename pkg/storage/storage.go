// Package storage provides persistent configuration storage using LittleFS.
// It handles atomic writes, version checking, and cleanup of temporary files.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/config"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/logger"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

const (
	configDir    = "/config"
	keymapsDir   = "/config/keymaps"
	deviceFile   = "/config/device.bin"
	tempSuffix   = ".tmp"
	keymapSuffix = ".bin"

	// fileOverhead approximates the littlefs metadata cost of one file.
	fileOverhead = 32
)

var (
	ErrKeymapNotFound  = errors.New("keymap not found")
	ErrFlashFull       = errors.New("insufficient flash space")
	ErrInvalidKeymap   = errors.New("invalid keymap data")
	ErrVersionMismatch = errors.New("config version mismatch")
	ErrFilesystem      = errors.New("filesystem error")
)

// Manager handles config persistence using LittleFS.
type Manager struct {
	fs       *littlefs.LFS
	blockDev tinyfs.BlockDevice
	mounted  bool
	wiped    bool
}

// Stats provides information about storage usage.
type Stats struct {
	TotalSpace  int64
	UsedSpace   int64
	FreeSpace   int64
	KeymapCount int
	Wiped       bool // configs were wiped on boot after a version change
}

// New initializes the storage system with the given block device.
// It mounts the filesystem and performs boot-time cleanup.
// If format is true and mount fails, it will format the filesystem.
func New(blockDev tinyfs.BlockDevice, format bool) (*Manager, error) {
	lfs := littlefs.New(blockDev)

	// Configure LittleFS for RP2040 flash
	// These are conservative settings for reliability
	lfs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 128,
	})

	// Try to mount existing filesystem
	err := lfs.Mount()
	if err != nil {
		if !format {
			return nil, fmt.Errorf("%w: mount: %w", ErrFilesystem, err)
		}
		logger.LogWarn(logger.ComponentStorage, "mount failed, formatting", "err", err)
		if err := lfs.Format(); err != nil {
			return nil, fmt.Errorf("%w: format: %w", ErrFilesystem, err)
		}
		if err := lfs.Mount(); err != nil {
			return nil, fmt.Errorf("%w: mount: %w", ErrFilesystem, err)
		}
	}

	m := &Manager{
		fs:       lfs,
		blockDev: blockDev,
		mounted:  true,
	}

	if err := m.bootCleanup(); err != nil {
		logger.LogWarn(logger.ComponentStorage, "boot cleanup failed", "err", err)
	}

	needsWipe, err := m.checkVersion()
	if err != nil {
		// Unreadable device config is treated like first boot.
		logger.LogWarn(logger.ComponentStorage, "device config unreadable", "err", err)
		needsWipe = false
	}

	if needsWipe {
		// Keymaps from another format version cannot be decoded; the host
		// tool must upload them again.
		logger.LogWarn(logger.ComponentStorage, "config version changed, wiping", "version", config.CurrentVersion)
		if err := m.wipeAll(); err != nil {
			return nil, err
		}
		m.wiped = true
	}

	return m, nil
}

// Close unmounts the filesystem.
func (m *Manager) Close() error {
	if m.mounted {
		m.mounted = false
		return m.fs.Unmount()
	}
	return nil
}

// bootCleanup removes temporary files left over from interrupted writes.
func (m *Manager) bootCleanup() error {
	for _, dir := range []string{configDir, keymapsDir} {
		entries, err := m.readDir(dir)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return err
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasSuffix(name, tempSuffix) {
				logger.LogInfo(logger.ComponentStorage, "removing stale temp file", "name", name)
				m.fs.Remove(path.Join(dir, name))
			}
		}
	}
	return nil
}

// readDir reads the directory entries at the given path.
func (m *Manager) readDir(dirPath string) ([]os.FileInfo, error) {
	f, err := m.fs.Open(dirPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !f.IsDir() {
		return nil, errors.New("not a directory")
	}

	return f.Readdir(-1)
}

// checkVersion reads device config and checks if version matches.
// Returns true if configs should be wiped (version mismatch).
func (m *Manager) checkVersion() (bool, error) {
	var deviceCfg config.DeviceConfig
	if err := m.LoadDevice(&deviceCfg); err != nil {
		if isNotExist(err) {
			// No device config yet - not a version mismatch, just first boot
			return false, nil
		}
		return false, err
	}

	return deviceCfg.Version != config.CurrentVersion, nil
}

// wipeAll removes all configuration files.
func (m *Manager) wipeAll() error {
	slots, err := m.ListKeymaps()
	if err == nil {
		for _, slot := range slots {
			m.DeleteKeymap(slot)
		}
	}

	m.fs.Remove(deviceFile)

	return nil
}

// ensureDirs creates the config directories if they don't exist.
func (m *Manager) ensureDirs() error {
	if err := m.fs.Mkdir(configDir, 0755); err != nil && !isExist(err) {
		return err
	}
	if err := m.fs.Mkdir(keymapsDir, 0755); err != nil && !isExist(err) {
		return err
	}
	return nil
}

// isExist checks if an error is "already exists".
// LittleFS errors don't always match os.IsExist, so we check the message too.
func isExist(err error) bool {
	if err == nil {
		return false
	}
	if os.IsExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

// isNotExist is the "no such entry" counterpart of isExist.
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "No directory entry")
}

// LoadDevice loads the device configuration.
func (m *Manager) LoadDevice(cfg *config.DeviceConfig) error {
	f, err := m.fs.Open(deviceFile)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, config.DeviceConfigSize)
	n, err := f.Read(buf)
	if err != nil {
		return err
	}
	if n != config.DeviceConfigSize {
		return config.ErrInvalidSize
	}

	return cfg.UnmarshalBinary(buf)
}

// LoadDeviceOrDefaults returns the stored device configuration, or the
// defaults when none is stored or it does not validate.
func (m *Manager) LoadDeviceOrDefaults() config.DeviceConfig {
	var cfg config.DeviceConfig
	if err := m.LoadDevice(&cfg); err != nil {
		if !isNotExist(err) {
			logger.LogWarn(logger.ComponentStorage, "device config unreadable, using defaults", "err", err)
		}
		return config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		logger.LogWarn(logger.ComponentStorage, "device config invalid, using defaults", "err", err)
		return config.Defaults()
	}
	return cfg
}

// SaveDevice saves the device configuration atomically.
func (m *Manager) SaveDevice(cfg *config.DeviceConfig) error {
	if err := m.ensureDirs(); err != nil {
		return err
	}

	cfg.Version = config.CurrentVersion

	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}

	return m.atomicWrite(deviceFile, data)
}

// LoadKeymap loads the keymap profile stored in slot.
func (m *Manager) LoadKeymap(slot uint8, profile *config.KeymapProfile) error {
	f, err := m.fs.Open(m.keymapPath(slot))
	if err != nil {
		if isNotExist(err) {
			return ErrKeymapNotFound
		}
		return err
	}
	defer f.Close()

	if err := profile.Unmarshal(f); err != nil {
		return fmt.Errorf("%w: slot %d: %w", ErrInvalidKeymap, slot, err)
	}
	return nil
}

// SaveKeymap saves a keymap profile to the given slot atomically.
func (m *Manager) SaveKeymap(slot uint8, profile *config.KeymapProfile) error {
	if err := m.ensureDirs(); err != nil {
		return err
	}

	profile.Version = config.CurrentVersion

	data, err := profile.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeymap, err)
	}

	if !m.canFit(slot, len(data)) {
		return ErrFlashFull
	}

	return m.atomicWrite(m.keymapPath(slot), data)
}

// DeleteKeymap removes the keymap in the given slot.
func (m *Manager) DeleteKeymap(slot uint8) error {
	if err := m.fs.Remove(m.keymapPath(slot)); err != nil {
		if isNotExist(err) {
			return ErrKeymapNotFound
		}
		return err
	}
	return nil
}

// KeymapExists checks if a keymap exists in the given slot.
func (m *Manager) KeymapExists(slot uint8) bool {
	f, err := m.fs.Open(m.keymapPath(slot))
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// ListKeymaps returns the occupied keymap slots.
func (m *Manager) ListKeymaps() ([]uint8, error) {
	entries, err := m.readDir(keymapsDir)
	if err != nil {
		if isNotExist(err) {
			return []uint8{}, nil
		}
		return nil, err
	}

	slots := []uint8{}
	for _, entry := range entries {
		if slot, ok := parseSlot(entry.Name()); ok {
			slots = append(slots, slot)
		}
	}

	return slots, nil
}

// parseSlot parses "N.bin"; temp files never match.
func parseSlot(name string) (uint8, bool) {
	if !strings.HasSuffix(name, keymapSuffix) {
		return 0, false
	}
	slot, err := strconv.ParseUint(strings.TrimSuffix(name, keymapSuffix), 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(slot), true
}

// GetStats returns storage statistics. Used space is estimated from file
// sizes plus a fixed per-file metadata cost.
func (m *Manager) GetStats() (*Stats, error) {
	used := int64(0)
	count := 0

	for _, dir := range []string{configDir, keymapsDir} {
		entries, err := m.readDir(dir)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			used += entry.Size() + fileOverhead
			if _, ok := parseSlot(entry.Name()); ok && dir == keymapsDir {
				count++
			}
		}
	}

	total := m.blockDev.Size()

	return &Stats{
		TotalSpace:  total,
		UsedSpace:   used,
		FreeSpace:   total - used,
		KeymapCount: count,
		Wiped:       m.wiped,
	}, nil
}

// CanFitKeymap estimates if a keymap of the largest size can be stored.
// This is a conservative estimate.
func (m *Manager) CanFitKeymap() bool {
	return m.canFit(0xFF, config.MaxKeymapSize)
}

// canFit leaves room for the temp copy made by atomicWrite and one spare
// block for littlefs. A slot being replaced frees its old size.
func (m *Manager) canFit(slot uint8, size int) bool {
	stats, err := m.GetStats()
	if err != nil {
		return false
	}
	free := stats.FreeSpace + m.keymapSize(slot)
	need := int64(2*(size+fileOverhead)) + m.blockDev.EraseBlockSize()
	return free > need
}

// keymapSize returns the stored size of slot, 0 when empty.
func (m *Manager) keymapSize(slot uint8) int64 {
	entries, err := m.readDir(keymapsDir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if s, ok := parseSlot(entry.Name()); ok && s == slot {
			return entry.Size()
		}
	}
	return 0
}

// keymapPath returns the filesystem path for a keymap slot.
func (m *Manager) keymapPath(slot uint8) string {
	return path.Join(keymapsDir, strconv.Itoa(int(slot))+keymapSuffix)
}

// atomicWrite writes data to a temporary file, syncs it, then renames.
// This ensures atomic updates - the original file is never in a partially written state.
func (m *Manager) atomicWrite(filepath string, data []byte) error {
	tempPath := filepath + tempSuffix

	// Remove temp file if it exists (from interrupted previous write)
	m.fs.Remove(tempPath)

	f, err := m.fs.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		m.fs.Remove(tempPath)
		return err
	}

	// Sync ensures data hits flash
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			m.fs.Remove(tempPath)
			return err
		}
	}

	if err := f.Close(); err != nil {
		m.fs.Remove(tempPath)
		return err
	}

	// Remove existing file if present (LittleFS rename doesn't replace)
	m.fs.Remove(filepath)

	if err := m.fs.Rename(tempPath, filepath); err != nil {
		m.fs.Remove(tempPath)
		return err
	}

	return nil
}

// ForceWipe completely erases all configuration (factory reset).
func (m *Manager) ForceWipe() error {
	logger.LogInfo(logger.ComponentStorage, "factory reset")
	return m.wipeAll()
}
