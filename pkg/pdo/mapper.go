package pdo

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samsamfire/goelmo/pkg/od"
	"github.com/samsamfire/goelmo/pkg/sdo"
)

// Mapper negotiates which cyclic data layout is active on the drive.
// Each direction is written as a strictly ordered sequence over SDO,
// every step verified with read-back :
//
//  1. assignment count = 0, the drive rejects re-mapping otherwise
//  2. assignment entries 1..N in catalog order
//  3. assignment count = N, activates the mapping
//
// A direction whose requested kind is already current is skipped
// without any device I/O. Mapping must happen outside the cyclic
// exchange, typically during pre-operational configuration.
type Mapper struct {
	client        *sdo.Client
	logger        *slog.Logger
	verifyTimeout time.Duration
	settleDelay   time.Duration

	mu      sync.Mutex
	current Layout
}

// NewMapper creates a [Mapper] using the given SDO client.
// verifyTimeout bounds every verified write and doubles as the
// inter-step settle delay.
func NewMapper(client *sdo.Client, logger *slog.Logger, verifyTimeout time.Duration) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		client:        client,
		logger:        logger.With("service", "[PDO]"),
		verifyTimeout: verifyTimeout,
		settleDelay:   verifyTimeout,
	}
}

// Current returns the layout pair accepted so far.
func (m *Mapper) Current() Layout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Map negotiates both directions and returns the resulting layout.
// A failing direction does not prevent the other from being attempted;
// its previously accepted kind stays current.
func (m *Mapper) Map(rx RxType, tx TxType) (Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rxErr := m.mapRx(rx)
	txErr := m.mapTx(tx)
	return m.current, errors.Join(rxErr, txErr)
}

func (m *Mapper) mapRx(t RxType) error {
	if t == RxNone {
		return fmt.Errorf("rx : %w", ErrTypeNotConfigured)
	}
	if t == m.current.Rx {
		m.logger.Debug("rx mapping already current", "type", t)
		return nil
	}
	err := m.writeAssignment(od.EntryRxPdoAssignment, rxAssignments[t])
	if err != nil {
		m.logger.Error("rx mapping failed", "type", t, "error", err)
		return err
	}
	m.logger.Info("rx mapping accepted", "type", t)
	m.current.Rx = t
	return nil
}

func (m *Mapper) mapTx(t TxType) error {
	if t == TxNone {
		return fmt.Errorf("tx : %w", ErrTypeNotConfigured)
	}
	if t == m.current.Tx {
		m.logger.Debug("tx mapping already current", "type", t)
		return nil
	}
	err := m.writeAssignment(od.EntryTxPdoAssignment, txAssignments[t])
	if err != nil {
		m.logger.Error("tx mapping failed", "type", t, "error", err)
		return err
	}
	m.logger.Info("tx mapping accepted", "type", t)
	m.current.Tx = t
	return nil
}

func (m *Mapper) writeAssignment(index uint16, entries []uint16) error {
	err := m.verify(index, 0, uint8(0))
	if err != nil {
		return err
	}
	for i, entry := range entries {
		err := m.verify(index, uint8(i+1), entry)
		if err != nil {
			return err
		}
	}
	return m.verify(index, 0, uint8(len(entries)))
}

func (m *Mapper) verify(index uint16, subindex uint8, value any) error {
	time.Sleep(m.settleDelay)
	return m.client.WriteVerified(index, subindex, value, m.verifyTimeout)
}
