package main

import (
	"flag"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/config"
	"github.com/samsamfire/goelmo/pkg/drive"
	"github.com/samsamfire/goelmo/pkg/ecat"
	"github.com/samsamfire/goelmo/pkg/ecat/virtual"
	"github.com/samsamfire/goelmo/pkg/pdo"
)

var DEFAULT_ADDRESS = 1
var DEFAULT_CYCLE_TIME = time.Millisecond

func main() {
	log.SetLevel(log.DebugLevel)
	address := flag.Int("a", DEFAULT_ADDRESS, "slave address")
	configPath := flag.String("c", "", "drive configuration file (.yaml or .ini)")
	cycleTime := flag.Duration("t", DEFAULT_CYCLE_TIME, "cycle time")
	flag.Parse()

	// Runs against a simulated drive. Swap the bus for a real master
	// binding to talk to hardware.
	bus := virtual.NewBus()
	bus.AddDevice(uint16(*address))

	cfg := config.Default()
	cfg.RxPdoType = pdo.RxStandard
	cfg.TxPdoType = pdo.TxStandard
	cfg.ModeOfOperation = cia402.ModeProfiledVelocity
	cfg.PositionEncoderResolution = 524288
	cfg.MaxCurrentA = 10.0
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			panic(err)
		}
	}

	elmo, err := drive.New(bus, uint16(*address), "elmo", cfg, nil)
	if err != nil {
		panic(err)
	}
	err = elmo.RunPreopConfiguration()
	if err != nil {
		panic(err)
	}
	err = elmo.Startup()
	if err != nil {
		panic(err)
	}
	err = bus.SetState(ecat.StateOp, uint16(*address))
	if err != nil {
		panic(err)
	}

	// Cyclic exchange
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(*cycleTime)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				err := elmo.UpdateWrite()
				if err != nil {
					log.Errorf("cyclic write failed : %v", err)
				}
				err = elmo.UpdateRead()
				if err != nil {
					log.Errorf("cyclic read failed : %v", err)
				}
			}
		}
	}()

	err = elmo.RequestState(cia402.StateOperationEnabled, true, 0)
	if err != nil {
		log.Errorf("failed to enable operation : %v", err)
	}

	elmo.StageCommand(drive.Command{
		TargetVelocity:  1.0,
		ModeOfOperation: cia402.ModeProfiledVelocity,
	})

	for i := 0; i < 5; i++ {
		time.Sleep(100 * time.Millisecond)
		reading := elmo.GetReading()
		log.Infof("state : %v position : %.3f rad velocity : %.3f rad/s torque : %.3f Nm",
			reading.DriveState(),
			reading.ActualPosition(),
			reading.ActualVelocity(),
			reading.ActualTorque(),
		)
	}

	err = elmo.RequestState(cia402.StateSwitchOnDisabled, true, 0)
	if err != nil {
		log.Errorf("failed to disable drive : %v", err)
	}
	close(stop)
	<-done
	err = elmo.Shutdown()
	if err != nil {
		log.Errorf("shutdown failed : %v", err)
	}
}
