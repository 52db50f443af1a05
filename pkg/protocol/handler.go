package protocol

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/config"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/keyboard"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/layout"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/logger"
	"github.com/tuffrabit/tinygo-narwhal-kb/pkg/storage"
)

// Device is the running keyboard as seen by the protocol.
// *keyboard.Keyboard satisfies it.
type Device interface {
	Stats() keyboard.Stats
	UseKeymap(km *layout.Keymap) error
}

// Handler processes protocol commands.
type Handler struct {
	storage    *storage.Manager
	device     Device
	bootloader func()
	fallback   func() *layout.Keymap
	lastCmd    uint8
	handled    uint32
}

// NewHandler creates a new protocol handler. device may be nil, in which
// case diagnostics are unavailable and stored keymaps are not activated.
func NewHandler(sm *storage.Manager, device Device) *Handler {
	return &Handler{
		storage: sm,
		device:  device,
	}
}

// OnBootloader sets the function run after the EnterBootloader response
// has been written.
func (h *Handler) OnBootloader(fn func()) {
	h.bootloader = fn
}

// OnMissingKeymap sets the function that supplies the keymap to run when a
// new active slot cannot be loaded. The firmware passes board.Default so a
// switch behaves like boot.
func (h *Handler) OnMissingKeymap(fn func() *layout.Keymap) {
	h.fallback = fn
}

// EnterBootloader runs the bootloader hook. It reports false when none is
// installed.
func (h *Handler) EnterBootloader() bool {
	if h.bootloader == nil {
		return false
	}
	h.bootloader()
	return true
}

// LastCmd returns the last command handled and the number handled so far.
func (h *Handler) LastCmd() (uint8, uint32) {
	return h.lastCmd, h.handled
}

// Serve reads one frame from rw, handles it and writes the response.
func (h *Handler) Serve(rw io.ReadWriter) error {
	frame, err := ReadFrame(rw)
	return h.serveFrame(rw, frame, err)
}

// ServeAfterSync is Serve for a frame whose sync byte was already read.
func (h *Handler) ServeAfterSync(rw io.ReadWriter) error {
	frame, err := ReadFrameAfterSync(rw)
	return h.serveFrame(rw, frame, err)
}

func (h *Handler) serveFrame(w io.Writer, frame *Frame, err error) error {
	if err != nil {
		if errors.Is(err, ErrCRCMismatch) {
			return WriteResponse(w, &Response{Status: StatusCRCError})
		}
		return err
	}
	resp := h.Handle(frame)
	if err := WriteResponse(w, resp); err != nil {
		return err
	}
	if resp.after != nil {
		resp.after()
	}
	return nil
}

// Handle processes a command frame and returns a response.
func (h *Handler) Handle(frame *Frame) *Response {
	h.lastCmd = frame.Cmd
	h.handled++
	logger.LogDebug(logger.ComponentProtocol, "command", "cmd", CmdName(frame.Cmd), "len", len(frame.Payload))

	switch frame.Cmd {
	case CmdPing:
		return h.handlePing(frame.Payload)
	case CmdGetDeviceConfig:
		return h.handleGetDeviceConfig()
	case CmdSetDeviceConfig:
		return h.handleSetDeviceConfig(frame.Payload)
	case CmdGetKeymap:
		return h.handleGetKeymap(frame.Payload)
	case CmdSetKeymap:
		return h.handleSetKeymap(frame.Payload)
	case CmdDeleteKeymap:
		return h.handleDeleteKeymap(frame.Payload)
	case CmdListKeymaps:
		return h.handleListKeymaps()
	case CmdGetStorageStats:
		return h.handleGetStorageStats()
	case CmdFactoryReset:
		return h.handleFactoryReset()
	case CmdDiscover:
		return &Response{Status: StatusOK, Payload: []byte(DeviceName)}
	case CmdGetVersion:
		return h.handleGetVersion()
	case CmdGetDiagnostics:
		return h.handleGetDiagnostics()
	case CmdEnterBootloader:
		return h.handleEnterBootloader()
	default:
		return &Response{Status: StatusInvalidCmd}
	}
}

// handlePing responds with the same payload (echo).
func (h *Handler) handlePing(payload []byte) *Response {
	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleGetDeviceConfig returns the current device configuration, the
// defaults when none is stored.
func (h *Handler) handleGetDeviceConfig() *Response {
	cfg := h.storage.LoadDeviceOrDefaults()

	data, err := cfg.MarshalBinary()
	if err != nil {
		return &Response{Status: StatusError}
	}

	return &Response{
		Status:  StatusOK,
		Payload: data,
	}
}

// handleSetDeviceConfig updates the device configuration and switches to
// its active keymap, or to the fallback keymap when that slot is empty or
// unusable.
// Payload: [DeviceConfig:12 bytes]
func (h *Handler) handleSetDeviceConfig(payload []byte) *Response {
	if len(payload) != config.DeviceConfigSize {
		return &Response{Status: StatusInvalidData}
	}

	var cfg config.DeviceConfig
	if err := cfg.UnmarshalBinary(payload); err != nil {
		return &Response{Status: StatusInvalidData}
	}
	if err := cfg.Validate(); err != nil {
		return &Response{Status: StatusInvalidData}
	}

	if err := h.storage.SaveDevice(&cfg); err != nil {
		return storageFailure(err)
	}

	var profile config.KeymapProfile
	err := h.storage.LoadKeymap(cfg.ActiveKeymap, &profile)
	if err == nil {
		err = h.activate(&cfg, &profile.Keymap)
	}
	if err != nil && h.fallback != nil {
		logger.LogInfo(logger.ComponentProtocol, "using built-in keymap", "slot", cfg.ActiveKeymap, "reason", err)
		h.activate(&cfg, h.fallback())
	}

	return &Response{Status: StatusOK}
}

// handleGetKeymap returns a keymap by slot number.
// Payload: [Slot:1 byte]
func (h *Handler) handleGetKeymap(payload []byte) *Response {
	if len(payload) != 1 {
		return &Response{Status: StatusInvalidData}
	}

	var profile config.KeymapProfile
	if err := h.storage.LoadKeymap(payload[0], &profile); err != nil {
		return storageFailure(err)
	}

	data, err := profile.MarshalBinary()
	if err != nil {
		return &Response{Status: StatusError}
	}

	return &Response{
		Status:  StatusOK,
		Payload: data,
	}
}

// handleSetKeymap validates and saves a keymap to a slot. Saving the
// active slot switches the running keyboard to it.
// Payload: [Slot:1 byte][KeymapProfile]
func (h *Handler) handleSetKeymap(payload []byte) *Response {
	if len(payload) < 1+config.KeymapHeaderSize {
		return &Response{Status: StatusInvalidData}
	}

	slot := payload[0]

	var profile config.KeymapProfile
	if err := profile.UnmarshalBinary(payload[1:]); err != nil {
		if errors.Is(err, config.ErrVersion) {
			return &Response{Status: StatusVersionMismatch}
		}
		return &Response{Status: StatusInvalidData}
	}
	if err := profile.Keymap.Validate(); err != nil {
		logger.LogWarn(logger.ComponentProtocol, "rejected keymap", "slot", slot, "err", err)
		return &Response{Status: StatusInvalidData}
	}

	if err := h.storage.SaveKeymap(slot, &profile); err != nil {
		return storageFailure(err)
	}
	logger.LogInfo(logger.ComponentProtocol, "keymap saved", "slot", slot, "name", profile.GetName())

	cfg := h.storage.LoadDeviceOrDefaults()
	if cfg.ActiveKeymap == slot {
		h.activate(&cfg, &profile.Keymap)
	}

	return &Response{Status: StatusOK}
}

func (h *Handler) activate(cfg *config.DeviceConfig, km *layout.Keymap) error {
	if h.device == nil {
		return nil
	}
	cfg.Apply(km)
	err := h.device.UseKeymap(km)
	if err != nil {
		logger.LogWarn(logger.ComponentProtocol, "keymap not activated", "err", err)
	}
	return err
}

// handleDeleteKeymap removes a keymap from a slot.
// Payload: [Slot:1 byte]
func (h *Handler) handleDeleteKeymap(payload []byte) *Response {
	if len(payload) != 1 {
		return &Response{Status: StatusInvalidData}
	}

	if err := h.storage.DeleteKeymap(payload[0]); err != nil {
		return storageFailure(err)
	}

	return &Response{Status: StatusOK}
}

// handleListKeymaps returns all occupied keymap slots.
// Response: [Count:1 byte][Slot1:1 byte][Slot2:1 byte]...
func (h *Handler) handleListKeymaps() *Response {
	slots, err := h.storage.ListKeymaps()
	if err != nil {
		return &Response{Status: StatusError}
	}

	payload := make([]byte, 1+len(slots))
	payload[0] = uint8(len(slots))
	copy(payload[1:], slots)

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleGetStorageStats returns storage statistics.
// Response: [Total:4][Used:4][Free:4][KeymapCount:1][Wiped:1]
func (h *Handler) handleGetStorageStats() *Response {
	stats, err := h.storage.GetStats()
	if err != nil {
		return &Response{Status: StatusError}
	}

	payload := make([]byte, 14)
	binary.LittleEndian.PutUint32(payload[0:], uint32(stats.TotalSpace))
	binary.LittleEndian.PutUint32(payload[4:], uint32(stats.UsedSpace))
	binary.LittleEndian.PutUint32(payload[8:], uint32(stats.FreeSpace))
	payload[12] = uint8(stats.KeymapCount)
	if stats.Wiped {
		payload[13] = 1
	}

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleFactoryReset wipes all configuration.
func (h *Handler) handleFactoryReset() *Response {
	if err := h.storage.ForceWipe(); err != nil {
		return &Response{Status: StatusError}
	}
	return &Response{Status: StatusOK}
}

// handleGetVersion returns firmware and config version info.
// Response: [FirmwareVersionMajor:1][FirmwareVersionMinor:1][ConfigVersion:2]
func (h *Handler) handleGetVersion() *Response {
	payload := make([]byte, 4)
	payload[0] = FirmwareMajor
	payload[1] = FirmwareMinor
	binary.LittleEndian.PutUint16(payload[2:], config.CurrentVersion)

	return &Response{
		Status:  StatusOK,
		Payload: payload,
	}
}

// handleGetDiagnostics returns the keyboard counters, see EncodeStats.
func (h *Handler) handleGetDiagnostics() *Response {
	if h.device == nil {
		return &Response{Status: StatusNotFound}
	}
	return &Response{
		Status:  StatusOK,
		Payload: EncodeStats(h.device.Stats()),
	}
}

// handleEnterBootloader acknowledges, then jumps to the bootloader once the
// response is on the wire.
func (h *Handler) handleEnterBootloader() *Response {
	if h.bootloader == nil {
		return &Response{Status: StatusInvalidCmd}
	}
	return &Response{Status: StatusOK, after: h.bootloader}
}

func storageFailure(err error) *Response {
	switch {
	case errors.Is(err, storage.ErrKeymapNotFound):
		return &Response{Status: StatusNotFound}
	case errors.Is(err, storage.ErrFlashFull):
		return &Response{Status: StatusNoSpace}
	case errors.Is(err, config.ErrVersion):
		return &Response{Status: StatusVersionMismatch}
	default:
		logger.LogError(logger.ComponentProtocol, "storage failure", "err", err)
		return &Response{Status: StatusError}
	}
}
