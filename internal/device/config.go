package device

import "fmt"

// Configuration address space: 32-bit values keyed by (module, parameter),
// read and written over synchronous control transfers. The module ids group
// parameters by on-chip subsystem.
const (
	ModuleMux      uint8 = 0 // timestamp/reset multiplexer
	ModuleDVS      uint8 = 1 // change-detection readout
	ModuleAPS      uint8 = 2 // frame readout
	ModuleIMU      uint8 = 3 // inertial measurement unit
	ModuleExtInput uint8 = 4 // external input detector
	ModuleBias     uint8 = 5 // analog bias generator
	ModuleSystem   uint8 = 6 // logic/system information
	ModuleUSB      uint8 = 9 // transfer engine
)

// Mux parameters.
const (
	ParamMuxRun            uint8 = 0
	ParamMuxTimestampRun   uint8 = 1
	ParamMuxTimestampReset uint8 = 2
)

// DVS parameters.
const (
	ParamDVSRun           uint8 = 0
	ParamDVSAckDelayRow   uint8 = 1
	ParamDVSAckDelayCol   uint8 = 2
	ParamDVSFilterRowOnly uint8 = 3
)

// APS parameters.
const (
	ParamAPSRun           uint8 = 0
	ParamAPSExposure      uint8 = 1 // microseconds
	ParamAPSFrameInterval uint8 = 2 // microseconds
	ParamAPSGlobalShutter uint8 = 3
)

// IMU parameters.
const (
	ParamIMURun            uint8 = 0
	ParamIMUAccelScale     uint8 = 1
	ParamIMUGyroScale      uint8 = 2
	ParamIMUSampleDividers uint8 = 3
)

// External input parameters.
const (
	ParamExtInputRunDetector   uint8 = 0
	ParamExtInputDetectRising  uint8 = 1
	ParamExtInputDetectFalling uint8 = 2
)

// Bias parameters address individual bias registers; the parameter id is the
// bias register number.
const (
	ParamBiasDiffOn  uint8 = 0
	ParamBiasDiffOff uint8 = 1
	ParamBiasRefr    uint8 = 2
	ParamBiasPr      uint8 = 3
	ParamBiasFollow  uint8 = 4
)

// System parameters (read-only on real hardware).
const (
	ParamSystemLogicVersion uint8 = 0
	ParamSystemChipID       uint8 = 1
)

// USB parameters.
const (
	ParamUSBRun              uint8 = 0
	ParamUSBEarlyPacketDelay uint8 = 1 // microseconds before a partial buffer is shipped
)

// paramKey identifies one register in the address space.
type paramKey struct {
	module uint8
	param  uint8
}

func (k paramKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.module, k.param)
}

// supportedParams is the address space the session accepts before touching
// the device, so an unsupported pair never generates a control transfer and
// never mutates device state.
var supportedParams = map[paramKey]bool{
	{ModuleMux, ParamMuxRun}:                    true,
	{ModuleMux, ParamMuxTimestampRun}:           true,
	{ModuleMux, ParamMuxTimestampReset}:         true,
	{ModuleDVS, ParamDVSRun}:                    true,
	{ModuleDVS, ParamDVSAckDelayRow}:            true,
	{ModuleDVS, ParamDVSAckDelayCol}:            true,
	{ModuleDVS, ParamDVSFilterRowOnly}:          true,
	{ModuleAPS, ParamAPSRun}:                    true,
	{ModuleAPS, ParamAPSExposure}:               true,
	{ModuleAPS, ParamAPSFrameInterval}:          true,
	{ModuleAPS, ParamAPSGlobalShutter}:          true,
	{ModuleIMU, ParamIMURun}:                    true,
	{ModuleIMU, ParamIMUAccelScale}:             true,
	{ModuleIMU, ParamIMUGyroScale}:              true,
	{ModuleIMU, ParamIMUSampleDividers}:         true,
	{ModuleExtInput, ParamExtInputRunDetector}:  true,
	{ModuleExtInput, ParamExtInputDetectRising}: true,
	{ModuleExtInput, ParamExtInputDetectFalling}: true,
	{ModuleBias, ParamBiasDiffOn}:               true,
	{ModuleBias, ParamBiasDiffOff}:              true,
	{ModuleBias, ParamBiasRefr}:                 true,
	{ModuleBias, ParamBiasPr}:                   true,
	{ModuleBias, ParamBiasFollow}:               true,
	{ModuleSystem, ParamSystemLogicVersion}:     true,
	{ModuleSystem, ParamSystemChipID}:           true,
	{ModuleUSB, ParamUSBRun}:                    true,
	{ModuleUSB, ParamUSBEarlyPacketDelay}:       true,
}

// Setting is one (module, parameter, value) write.
type Setting struct {
	Module uint8
	Param  uint8
	Value  uint32
}

// SettingResult reports the outcome of one default-config write. A failure
// does not roll back earlier writes; callers inspect results individually and
// may retry single parameters.
type SettingResult struct {
	Setting Setting
	Err     error
}

// defaultConfig is the baseline register set establishing a sane capture
// state: timestamps running, DVS on, moderate exposure, IMU on, early-packet
// shipping at 1ms.
var defaultConfig = []Setting{
	{ModuleMux, ParamMuxTimestampRun, 1},
	{ModuleMux, ParamMuxRun, 1},
	{ModuleDVS, ParamDVSRun, 1},
	{ModuleDVS, ParamDVSAckDelayRow, 4},
	{ModuleDVS, ParamDVSAckDelayCol, 0},
	{ModuleDVS, ParamDVSFilterRowOnly, 1},
	{ModuleAPS, ParamAPSRun, 1},
	{ModuleAPS, ParamAPSExposure, 4000},
	{ModuleAPS, ParamAPSFrameInterval, 40000},
	{ModuleAPS, ParamAPSGlobalShutter, 1},
	{ModuleIMU, ParamIMURun, 1},
	{ModuleIMU, ParamIMUAccelScale, 3},
	{ModuleIMU, ParamIMUGyroScale, 3},
	{ModuleBias, ParamBiasDiffOn, 384},
	{ModuleBias, ParamBiasDiffOff, 176},
	{ModuleBias, ParamBiasRefr, 1049},
	{ModuleBias, ParamBiasPr, 570},
	{ModuleBias, ParamBiasFollow, 1755},
	{ModuleUSB, ParamUSBEarlyPacketDelay, 1000},
}
