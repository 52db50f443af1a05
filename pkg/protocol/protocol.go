// Package protocol implements the binary configuration protocol spoken over
// the USB CDC port. The firmware serves it; the keymapc host tool is the
// client. The protocol is designed to be simple, efficient, and suitable
// for TinyGo.
//
// Frame format:
//
//	[SYNC:1][CMD:1][LEN:2][PAYLOAD:LEN][CRC:2]
//	- SYNC: 0xAA (frame start marker)
//	- CMD: Command byte (status byte in responses)
//	- LEN: Payload length (uint16, little-endian)
//	- PAYLOAD: Variable length data
//	- CRC: CRC16-CCITT of [CMD][LEN][PAYLOAD]
//
// Response format is identical.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	SyncByte = 0xAA

	// MaxPayload fits the largest encoded keymap plus its slot byte.
	MaxPayload = 8192

	// Command codes (PC → Device)
	CmdGetDeviceConfig = 0x01
	CmdSetDeviceConfig = 0x02
	CmdGetKeymap       = 0x03
	CmdSetKeymap       = 0x04
	CmdDeleteKeymap    = 0x05
	CmdListKeymaps     = 0x06
	CmdGetStorageStats = 0x07
	CmdPing            = 0x08
	CmdFactoryReset    = 0x09
	CmdDiscover        = 0x0A
	CmdGetVersion      = 0x10
	CmdGetDiagnostics  = 0x11
	CmdEnterBootloader = 0x12

	// Response status codes (Device → PC)
	StatusOK              = 0x00
	StatusError           = 0x01
	StatusInvalidCmd      = 0x02
	StatusInvalidData     = 0x03
	StatusNotFound        = 0x04
	StatusNoSpace         = 0x05
	StatusVersionMismatch = 0x06
	StatusCRCError        = 0x07
)

// DeviceName is the CmdDiscover reply.
const DeviceName = "narwhal-kb"

// Firmware version reported by CmdGetVersion.
const (
	FirmwareMajor = 0
	FirmwareMinor = 2
)

var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrCRCMismatch  = errors.New("CRC mismatch")
	ErrTimeout      = errors.New("timeout")
)

// Frame represents a protocol frame.
type Frame struct {
	Cmd     uint8
	Payload []byte
}

// Response represents a protocol response.
type Response struct {
	Status  uint8
	Payload []byte

	// after runs once the response has been written.
	after func()
}

// ResponseError wraps a non-OK response status as an error.
type ResponseError struct {
	Cmd    uint8
	Status uint8
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", CmdName(e.Cmd), StatusName(e.Status))
}

// CmdName returns a short name for a command code.
func CmdName(cmd uint8) string {
	switch cmd {
	case CmdGetDeviceConfig:
		return "get-config"
	case CmdSetDeviceConfig:
		return "set-config"
	case CmdGetKeymap:
		return "get-keymap"
	case CmdSetKeymap:
		return "set-keymap"
	case CmdDeleteKeymap:
		return "del-keymap"
	case CmdListKeymaps:
		return "list-keymaps"
	case CmdGetStorageStats:
		return "storage-stats"
	case CmdPing:
		return "ping"
	case CmdFactoryReset:
		return "factory-reset"
	case CmdDiscover:
		return "discover"
	case CmdGetVersion:
		return "version"
	case CmdGetDiagnostics:
		return "diagnostics"
	case CmdEnterBootloader:
		return "bootloader"
	default:
		return fmt.Sprintf("cmd-0x%02X", cmd)
	}
}

// StatusName returns a short name for a status code.
func StatusName(status uint8) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusInvalidCmd:
		return "invalid command"
	case StatusInvalidData:
		return "invalid data"
	case StatusNotFound:
		return "not found"
	case StatusNoSpace:
		return "no space"
	case StatusVersionMismatch:
		return "version mismatch"
	case StatusCRCError:
		return "crc error"
	default:
		return fmt.Sprintf("status-0x%02X", status)
	}
}

// readPacket reads one [SYNC][CODE][LEN][PAYLOAD][CRC] packet.
func readPacket(r io.Reader) (uint8, []byte, error) {
	var sync [1]byte
	if _, err := io.ReadFull(r, sync[:]); err != nil {
		return 0, nil, err
	}
	if sync[0] != SyncByte {
		return 0, nil, ErrInvalidFrame
	}
	return readPacketBody(r)
}

// readPacketBody reads a packet whose sync byte was already consumed.
func readPacketBody(r io.Reader) (uint8, []byte, error) {
	// header is followed by the payload so the CRC covers one slice
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	code := header[0]
	length := binary.LittleEndian.Uint16(header[1:])
	if length > MaxPayload {
		return 0, nil, ErrInvalidFrame
	}

	buf := make([]byte, 3+int(length))
	copy(buf, header[:])
	if length > 0 {
		if _, err := io.ReadFull(r, buf[3:]); err != nil {
			return 0, nil, err
		}
	}

	var crcBytes [2]byte
	if _, err := io.ReadFull(r, crcBytes[:]); err != nil {
		return 0, nil, err
	}
	if binary.LittleEndian.Uint16(crcBytes[:]) != calcCRC(buf) {
		return 0, nil, ErrCRCMismatch
	}

	var payload []byte
	if length > 0 {
		payload = buf[3:]
	}
	return code, payload, nil
}

// writePacket writes one packet with a single Write call.
func writePacket(w io.Writer, code uint8, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrInvalidFrame
	}
	payloadLen := uint16(len(payload))
	frameLen := 1 + 1 + 2 + int(payloadLen) + 2 // sync + code + len + payload + crc

	buf := make([]byte, 4, frameLen)
	buf[0] = SyncByte
	buf[1] = code
	binary.LittleEndian.PutUint16(buf[2:], payloadLen)
	buf = append(buf, payload...)

	// CRC of code + len + payload
	buf = binary.LittleEndian.AppendUint16(buf, calcCRC(buf[1:]))

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads and validates a request frame from the reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	cmd, payload, err := readPacket(r)
	if err != nil {
		return nil, err
	}
	return &Frame{Cmd: cmd, Payload: payload}, nil
}

// ReadFrameAfterSync reads a request frame whose sync byte the caller
// already consumed while sniffing the input.
func ReadFrameAfterSync(r io.Reader) (*Frame, error) {
	cmd, payload, err := readPacketBody(r)
	if err != nil {
		return nil, err
	}
	return &Frame{Cmd: cmd, Payload: payload}, nil
}

// WriteFrame writes a request frame (PC side).
func WriteFrame(w io.Writer, frame *Frame) error {
	return writePacket(w, frame.Cmd, frame.Payload)
}

// ReadResponse reads and validates a response frame (PC side).
func ReadResponse(r io.Reader) (*Response, error) {
	status, payload, err := readPacket(r)
	if err != nil {
		return nil, err
	}
	return &Response{Status: status, Payload: payload}, nil
}

// WriteResponse writes a response frame to the writer.
func WriteResponse(w io.Writer, resp *Response) error {
	return writePacket(w, resp.Status, resp.Payload)
}

// Exchange sends one request and waits for its response. A non-OK status
// is returned as a *ResponseError alongside the response.
func Exchange(rw io.ReadWriter, cmd uint8, payload []byte) (*Response, error) {
	if err := WriteFrame(rw, &Frame{Cmd: cmd, Payload: payload}); err != nil {
		return nil, fmt.Errorf("write %s: %w", CmdName(cmd), err)
	}
	resp, err := ReadResponse(rw)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", CmdName(cmd), err)
	}
	if resp.Status != StatusOK {
		return resp, &ResponseError{Cmd: cmd, Status: resp.Status}
	}
	return resp, nil
}

// calcCRC calculates CRC16-CCITT.
// Polynomial: 0x1021, Initial: 0xFFFF
func calcCRC(data []byte) uint16 {
	var crc uint16 = 0xFFFF

	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
