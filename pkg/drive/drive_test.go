package drive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/config"
	"github.com/samsamfire/goelmo/pkg/ecat"
	"github.com/samsamfire/goelmo/pkg/ecat/virtual"
	"github.com/samsamfire/goelmo/pkg/od"
	"github.com/samsamfire/goelmo/pkg/pdo"
)

func testConfiguration() config.Configuration {
	return config.Configuration{
		ConfigRunSdoVerifyTimeout:        time.Millisecond,
		DriveStateChangeMinTimeout:       time.Millisecond,
		DriveStateChangeMaxTimeout:       500 * time.Millisecond,
		MinSuccessfulTargetStateReadings: 3,
		RxPdoType:                        pdo.RxStandard,
		TxPdoType:                        pdo.TxStandard,
		ModeOfOperation:                  cia402.ModeProfiledVelocity,
		PositionEncoderResolution:        524288,
		GearRatio:                        100.0,
		MotorConstant:                    0.1,
		MotorRatedCurrentA:               5.0,
		MaxCurrentA:                      10.0,
		ErrorStorageCapacity:             25,
	}
}

func newTestDrive(t *testing.T, cfg config.Configuration) (*Drive, *virtual.Device) {
	t.Helper()
	bus := virtual.NewBus()
	device := bus.AddDevice(1)
	d, err := New(bus, 1, "drive_test", cfg, nil)
	assert.Nil(t, err)
	return d, device
}

// runPreop brings the drive through pre-operational configuration and
// startup so cyclic exchange can run.
func runPreop(t *testing.T, d *Drive) {
	t.Helper()
	assert.Nil(t, d.RunPreopConfiguration())
	assert.Nil(t, d.Startup())
}

// cycle performs one full cyclic exchange.
func cycle(t *testing.T, d *Drive) {
	t.Helper()
	assert.Nil(t, d.UpdateWrite())
	assert.Nil(t, d.UpdateRead())
}

func TestRunPreopConfiguration(t *testing.T) {
	cfg := testConfiguration()
	cfg.MotorRatedCurrentA = 0 // load from hardware
	d, device := newTestDrive(t, cfg)

	assert.Nil(t, d.RunPreopConfiguration())

	// Rated current resolved from the drive (5000 mA default)
	assert.Equal(t, 5.0, d.Configuration().MotorRatedCurrentA)

	// Mode of operation written and verified
	mode, ok := device.Object(od.EntryModesOfOperation, 0)
	assert.True(t, ok)
	assert.Equal(t, []byte{uint8(cia402.ModeProfiledVelocity)}, mode)

	// Current limits written back in drive units
	maxCurrent, ok := device.Object(od.EntryMaxCurrent, 0)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x10, 0x27}, maxCurrent) // 10000 mA

	// Layout negotiated and sizes recorded
	assert.Nil(t, d.Startup())
	sizes := d.PdoSizes()
	assert.EqualValues(t, 17, sizes.Rx)
	assert.EqualValues(t, 22, sizes.Tx)

	// Forced to READY-TO-SWITCH-ON during configuration
	assert.Equal(t, cia402.StateReadyToSwitchOn, device.DriveState())
}

func TestStartupWithoutNegotiation(t *testing.T) {
	d, _ := newTestDrive(t, testConfiguration())
	err := d.Startup()
	assert.ErrorIs(t, err, ErrLayoutNotNegotiated)

	reading := d.GetReading()
	assert.NotEmpty(t, reading.Errors())
	assert.Equal(t, ErrorTypeConfiguration, reading.Errors()[len(reading.Errors())-1].Type)
}

func TestSetStateViaSdo(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())

	err := d.SetStateViaSdo(cia402.StateOperationEnabled)
	assert.Nil(t, err)
	assert.Equal(t, cia402.StateOperationEnabled, device.DriveState())

	// Full chain out of fault
	device.InjectFault(0x3310)
	err = d.SetStateViaSdo(cia402.StateOperationEnabled)
	assert.Nil(t, err)
	assert.Equal(t, cia402.StateOperationEnabled, device.DriveState())

	err = d.SetStateViaSdo(cia402.StateSwitchOnDisabled)
	assert.Nil(t, err)
	assert.Equal(t, cia402.StateSwitchOnDisabled, device.DriveState())
}

func TestCyclicStateChange(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)

	assert.Nil(t, d.RequestState(cia402.StateOperationEnabled, false, 0))
	for i := 0; i < 50; i++ {
		cycle(t, d)
		time.Sleep(2 * time.Millisecond)
		d.mu.Lock()
		done := d.stateChangeSuccessful
		d.mu.Unlock()
		if done {
			break
		}
	}
	assert.Equal(t, cia402.StateOperationEnabled, device.DriveState())
	reading := d.GetReading()
	assert.Equal(t, cia402.StateOperationEnabled, reading.DriveState())
}

func TestCyclicStateChangeDebounce(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)

	// Drive already at target, frozen so the controlword cannot move it
	device.SetDriveState(cia402.StateOperationEnabled)
	device.Freeze()
	assert.Nil(t, d.RequestState(cia402.StateOperationEnabled, false, 0))

	successful := func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.stateChangeSuccessful
	}

	// First write cannot engage, no reading happened yet
	assert.Nil(t, d.UpdateWrite())
	assert.Nil(t, d.UpdateRead())
	assert.False(t, successful())

	// Confirmed exactly on the 3rd matching evaluation, not earlier
	cycle(t, d)
	assert.False(t, successful())
	cycle(t, d)
	assert.False(t, successful())
	assert.Nil(t, d.UpdateWrite())
	assert.True(t, successful())
}

func TestCyclicEngineDwell(t *testing.T) {
	cfg := testConfiguration()
	cfg.DriveStateChangeMinTimeout = 20 * time.Millisecond
	d, device := newTestDrive(t, cfg)
	runPreop(t, d)
	device.Freeze() // stuck in READY-TO-SWITCH-ON

	controlword := func() cia402.Controlword {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.controlword
	}

	assert.Nil(t, d.RequestState(cia402.StateOperationEnabled, false, 0))
	cycle(t, d)
	cycle(t, d)
	// Within the dwell window no transition may be issued yet
	assert.EqualValues(t, 0, controlword())

	time.Sleep(25 * time.Millisecond)
	cycle(t, d)
	assert.Equal(t, cia402.Controlword(0x0007), controlword())

	// Re-issuing is gated by the dwell time as well
	cycle(t, d)
	cycle(t, d)
	assert.Equal(t, cia402.Controlword(0x0007), controlword())
}

func TestRequestStateBlocking(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.UpdateWrite()
				d.UpdateRead()
			}
		}
	}()

	// The wait must leave the device lock available to the cyclic
	// thread, progress is impossible otherwise.
	err := d.RequestState(cia402.StateOperationEnabled, true, 500*time.Millisecond)
	assert.Nil(t, err)
	assert.Equal(t, cia402.StateOperationEnabled, device.DriveState())

	err = d.RequestState(cia402.StateSwitchOnDisabled, true, 500*time.Millisecond)
	assert.Nil(t, err)
	assert.Equal(t, cia402.StateSwitchOnDisabled, device.DriveState())

	close(stop)
	<-done
}

func TestRequestStateTimeout(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)
	device.Freeze()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.UpdateWrite()
				d.UpdateRead()
			}
		}
	}()

	start := time.Now()
	err := d.RequestState(cia402.StateOperationEnabled, true, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrStateChangeTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	close(stop)
	<-done
}

func TestUpdateWriteModeNotSet(t *testing.T) {
	cfg := testConfiguration()
	cfg.ModeOfOperation = cia402.ModeNA
	d, _ := newTestDrive(t, cfg)
	runPreop(t, d)

	err := d.UpdateWrite()
	assert.ErrorIs(t, err, ErrModeOfOperationNotSet)

	reading := d.GetReading()
	assert.NotEmpty(t, reading.Errors())
	assert.Equal(t, ErrorTypeModeOfOperation, reading.Errors()[len(reading.Errors())-1].Type)
}

func TestModeChange(t *testing.T) {
	t.Run("allowed with multiple modes and standard layouts", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.UseMultipleModeOfOperations = true
		d, device := newTestDrive(t, cfg)
		runPreop(t, d)

		d.StageCommand(Command{ModeOfOperation: cia402.ModeProfiledTorque})
		cycle(t, d)
		mode, ok := device.Object(od.EntryModesOfOperation, 0)
		assert.True(t, ok)
		assert.Equal(t, []byte{uint8(cia402.ModeProfiledTorque)}, mode)
	})

	t.Run("ignored without the flag", func(t *testing.T) {
		d, device := newTestDrive(t, testConfiguration())
		runPreop(t, d)

		d.StageCommand(Command{ModeOfOperation: cia402.ModeProfiledTorque})
		cycle(t, d)
		mode, ok := device.Object(od.EntryModesOfOperation, 0)
		assert.True(t, ok)
		assert.Equal(t, []byte{uint8(cia402.ModeProfiledVelocity)}, mode)
	})

	t.Run("ignored with cst layout", func(t *testing.T) {
		cfg := testConfiguration()
		cfg.UseMultipleModeOfOperations = true
		cfg.RxPdoType = pdo.RxCST
		cfg.TxPdoType = pdo.TxCST
		cfg.ModeOfOperation = cia402.ModeCyclicSynchronousTorque
		d, device := newTestDrive(t, cfg)
		runPreop(t, d)

		d.StageCommand(Command{ModeOfOperation: cia402.ModeProfiledTorque})
		cycle(t, d)
		mode, ok := device.Object(od.EntryModesOfOperation, 0)
		assert.True(t, ok)
		assert.Equal(t, []byte{uint8(cia402.ModeCyclicSynchronousTorque)}, mode)
	})
}

func TestCyclicExchangeRoundtrip(t *testing.T) {
	d, _ := newTestDrive(t, testConfiguration())
	runPreop(t, d)

	// The simulated drive echoes targets as actual values
	d.StageCommand(Command{
		TargetPosition: 2.0 * 3.141592653589793,
		TargetVelocity: 1.0,
		TargetTorque:   2.0,
	})
	cycle(t, d)

	reading := d.GetReading()
	assert.InDelta(t, 2.0*3.141592653589793, reading.ActualPosition(), 1e-5)
	assert.InDelta(t, 1.0, reading.ActualVelocity(), 1e-5)
	assert.InDelta(t, 2.0, reading.ActualTorque(), 0.05)
	assert.EqualValues(t, 48000, reading.BusVoltage())
}

func TestCyclicExchangeCST(t *testing.T) {
	cfg := testConfiguration()
	cfg.RxPdoType = pdo.RxCST
	cfg.TxPdoType = pdo.TxCST
	cfg.ModeOfOperation = cia402.ModeCyclicSynchronousTorque
	d, _ := newTestDrive(t, cfg)
	runPreop(t, d)

	d.StageCommand(Command{TargetTorque: 2.0})
	cycle(t, d)

	reading := d.GetReading()
	assert.InDelta(t, 2.0, reading.ActualTorque(), 0.05)
	// The idle controlword disables the voltage on the first cycle
	assert.Equal(t, cia402.StateSwitchOnDisabled, reading.DriveState())
}

func TestFaultReporting(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)

	device.InjectFault(0x2340)
	cycle(t, d)

	reading := d.GetReading()
	assert.Equal(t, cia402.StateFault, reading.DriveState())
	assert.NotEmpty(t, reading.Faults())
	assert.EqualValues(t, 0x2340, reading.Faults()[len(reading.Faults())-1].Code)
}

func TestFaultCodeReadFailure(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)

	device.InjectFault(0x2340)
	device.RemoveObject(od.EntryErrorCode, 0)
	cycle(t, d)

	reading := d.GetReading()
	assert.Empty(t, reading.Faults())
	assert.NotEmpty(t, reading.Errors())
	assert.Equal(t, ErrorTypeErrorReading, reading.Errors()[len(reading.Errors())-1].Type)
}

func TestGetReadingIsACopy(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)
	cycle(t, d)

	before := d.GetReading()
	faultsBefore := len(before.Faults())

	device.InjectFault(0x2340)
	cycle(t, d)

	assert.Len(t, before.Faults(), faultsBefore)
	after := d.GetReading()
	assert.Greater(t, len(after.Faults()), faultsBefore)
}

func TestShutdown(t *testing.T) {
	d, device := newTestDrive(t, testConfiguration())
	runPreop(t, d)
	assert.Nil(t, d.Shutdown())
	assert.Equal(t, ecat.StateInit, device.State())
}
