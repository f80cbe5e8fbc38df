package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/pdo"
)

// On-file representation, shared between the YAML and INI formats.
// Timeouts are plain integers in microseconds, layout kinds and the
// mode of operation are names resolved by their packages.
type fileConfiguration struct {
	ConfigRunSdoVerifyTimeoutUs        int     `yaml:"config_run_sdo_verify_timeout" ini:"config_run_sdo_verify_timeout"`
	DriveStateChangeMinTimeoutUs       int     `yaml:"drive_state_change_min_timeout" ini:"drive_state_change_min_timeout"`
	DriveStateChangeMaxTimeoutUs       int     `yaml:"drive_state_change_max_timeout" ini:"drive_state_change_max_timeout"`
	MinSuccessfulTargetStateReadings   int     `yaml:"min_number_of_successful_target_state_readings" ini:"min_number_of_successful_target_state_readings"`
	RxPdoType                          string  `yaml:"rx_pdo_type" ini:"rx_pdo_type"`
	TxPdoType                          string  `yaml:"tx_pdo_type" ini:"tx_pdo_type"`
	ModeOfOperation                    string  `yaml:"mode_of_operation" ini:"mode_of_operation"`
	PositionEncoderResolution          uint32  `yaml:"position_encoder_resolution" ini:"position_encoder_resolution"`
	GearRatio                          float64 `yaml:"gear_ratio" ini:"gear_ratio"`
	MotorConstant                      float64 `yaml:"motor_constant" ini:"motor_constant"`
	MotorRatedCurrent                  float64 `yaml:"motor_rated_current" ini:"motor_rated_current"`
	MaxCurrent                         float64 `yaml:"max_current" ini:"max_current"`
	UseRawCommands                     bool    `yaml:"use_raw_commands" ini:"use_raw_commands"`
	UseMultipleModeOfOperations        bool    `yaml:"use_multiple_modes_of_operation" ini:"use_multiple_modes_of_operation"`
	ErrorStorageCapacity               int     `yaml:"error_storage_capacity" ini:"error_storage_capacity"`
	ForceAppendEqualError              bool    `yaml:"force_append_equal_error" ini:"force_append_equal_error"`
}

func (f *fileConfiguration) toConfiguration() (Configuration, error) {
	c := Configuration{
		ConfigRunSdoVerifyTimeout:        time.Duration(f.ConfigRunSdoVerifyTimeoutUs) * time.Microsecond,
		DriveStateChangeMinTimeout:       time.Duration(f.DriveStateChangeMinTimeoutUs) * time.Microsecond,
		DriveStateChangeMaxTimeout:       time.Duration(f.DriveStateChangeMaxTimeoutUs) * time.Microsecond,
		MinSuccessfulTargetStateReadings: f.MinSuccessfulTargetStateReadings,
		PositionEncoderResolution:        f.PositionEncoderResolution,
		GearRatio:                        f.GearRatio,
		MotorConstant:                    f.MotorConstant,
		MotorRatedCurrentA:               f.MotorRatedCurrent,
		MaxCurrentA:                      f.MaxCurrent,
		UseRawCommands:                   f.UseRawCommands,
		UseMultipleModeOfOperations:      f.UseMultipleModeOfOperations,
		ErrorStorageCapacity:             f.ErrorStorageCapacity,
		ForceAppendEqualError:            f.ForceAppendEqualError,
	}
	var err error
	c.RxPdoType, err = pdo.ParseRxType(f.RxPdoType)
	if err != nil {
		return c, err
	}
	c.TxPdoType, err = pdo.ParseTxType(f.TxPdoType)
	if err != nil {
		return c, err
	}
	c.ModeOfOperation, err = cia402.ParseModeOfOperation(f.ModeOfOperation)
	if err != nil {
		return c, err
	}
	c.ApplyDefaults()
	return c, c.Validate()
}

// LoadFile reads a drive configuration from a YAML (.yaml, .yml) or
// INI (.ini, .cfg) file. The returned configuration has defaults
// applied and is validated.
func LoadFile(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".ini", ".cfg":
		return ParseINI(data)
	default:
		return Configuration{}, fmt.Errorf("unsupported configuration format : %v", filepath.Ext(path))
	}
}

// ParseYAML parses a YAML drive configuration.
func ParseYAML(data []byte) (Configuration, error) {
	fileConf := fileConfiguration{}
	err := yaml.Unmarshal(data, &fileConf)
	if err != nil {
		return Configuration{}, err
	}
	return fileConf.toConfiguration()
}

// ParseINI parses an INI drive configuration. Keys live in the default
// section and match the YAML key names.
func ParseINI(data []byte) (Configuration, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return Configuration{}, err
	}
	fileConf := fileConfiguration{}
	err = iniFile.Section("").MapTo(&fileConf)
	if err != nil {
		return Configuration{}, err
	}
	return fileConf.toConfiguration()
}
