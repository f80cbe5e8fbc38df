// Package sdo provides the synchronous service data gateway of the
// driver : typed object dictionary reads and writes over the transport
// mailbox, plus a verified write primitive with bounded read-back
// polling. All calls may block the caller up to their timeout and must
// stay off the cyclic exchange path except where explicitly intended
// (fault code read, statusword query before an SDO transition chain).
package sdo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samsamfire/goelmo/pkg/ecat"
)

// Interval between read-back attempts during a verified write.
const verifyPollInterval = 500 * time.Microsecond

var ErrVerifyTimeout = errors.New("sdo verified write timed out")

// Client accesses the object dictionary of a single slave.
type Client struct {
	bus     ecat.Bus
	address uint16
	logger  *slog.Logger
}

// NewClient creates a [Client] for the slave at the given address.
func NewClient(bus ecat.Bus, address uint16, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		bus:     bus,
		address: address,
		logger:  logger.With("service", "[SDO]", "address", address),
	}
}

// encodeValue serializes a fixed size integer value to the little
// endian wire representation expected by the drive.
func encodeValue(value any) ([]byte, error) {
	buffer := new(bytes.Buffer)
	switch v := value.(type) {
	case uint8, int8, uint16, int16, uint32, int32, uint64, int64:
		err := binary.Write(buffer, binary.LittleEndian, v)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported sdo value type : %T", value)
	}
	return buffer.Bytes(), nil
}

func (c *Client) read(index uint16, subindex uint8, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := c.bus.SdoRead(c.address, index, subindex, buf)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("sdo read x%x|x%x : expected %v bytes, got %v", index, subindex, size, n)
	}
	return buf, nil
}

func (c *Client) ReadUint8(index uint16, subindex uint8) (uint8, error) {
	data, err := c.read(index, subindex, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (c *Client) ReadUint16(index uint16, subindex uint8) (uint16, error) {
	data, err := c.read(index, subindex, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

func (c *Client) ReadUint32(index uint16, subindex uint8) (uint32, error) {
	data, err := c.read(index, subindex, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (c *Client) ReadInt8(index uint16, subindex uint8) (int8, error) {
	value, err := c.ReadUint8(index, subindex)
	return int8(value), err
}

func (c *Client) ReadInt16(index uint16, subindex uint8) (int16, error) {
	value, err := c.ReadUint16(index, subindex)
	return int16(value), err
}

func (c *Client) ReadInt32(index uint16, subindex uint8) (int32, error) {
	value, err := c.ReadUint32(index, subindex)
	return int32(value), err
}

// WriteRaw writes a typed value to an object dictionary entry.
// value must be a fixed size integer.
func (c *Client) WriteRaw(index uint16, subindex uint8, value any) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	err = c.bus.SdoWrite(c.address, index, subindex, data)
	if err != nil {
		c.logger.Error("sdo write failed",
			"index", fmt.Sprintf("x%x", index),
			"subindex", fmt.Sprintf("x%x", subindex),
			"error", err,
		)
		return err
	}
	return nil
}

// WriteVerified writes a typed value and polls the entry until the
// read-back matches or timeout elapses. Read errors during the poll are
// retried, the device may still be applying the write.
func (c *Client) WriteVerified(index uint16, subindex uint8, value any, timeout time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	err = c.bus.SdoWrite(c.address, index, subindex, data)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		readBack, err := c.read(index, subindex, len(data))
		if err == nil && bytes.Equal(readBack, data) {
			return nil
		}
		if time.Now().After(deadline) {
			c.logger.Error("sdo verified write timed out",
				"index", fmt.Sprintf("x%x", index),
				"subindex", fmt.Sprintf("x%x", subindex),
				"value", value,
			)
			return ErrVerifyTimeout
		}
		time.Sleep(verifyPollInterval)
	}
}
