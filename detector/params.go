package detector

import "github.jpl.nasa.gov/bdube/prosilica/params"

// Param indexes a logical parameter in a camera session's parameter
// library.  Logical parameters are the driver-level settings and readbacks
// exposed to clients, distinct from the hardware's native attribute names
// and encodings.
type Param int

// the closed set of logical parameters
const (
	Manufacturer Param = iota
	Model
	Connected
	Acquire
	DetectorState
	ImageMode
	TriggerMode
	NumImages
	NumExposures
	AcquireTime
	AcquirePeriod
	Gain
	BinX
	BinY
	MinX
	MinY
	SizeX
	SizeY
	MaxSizeX
	MaxSizeY
	ImageSizeX
	ImageSizeY
	ImageSize
	DataType
	ImageCounter
	AutoSave
	WriteFile
	FullFileName
	ReadStats
	BadFrames
	StatDriverType
	StatFilterVersion
	StatFrameRate
	StatFramesCompleted
	StatFramesDropped
	StatPacketsErroneous
	StatPacketsMissed
	StatPacketsReceived
	StatPacketsRequested
	StatPacketsResent
	numParams
)

// paramDefs declares the parameter library for a session.  Order must
// match the Param constants exactly.
var paramDefs = []params.Def{
	{Name: "Manufacturer", Kind: params.String},
	{Name: "Model", Kind: params.String},
	{Name: "Connected", Kind: params.Int},
	{Name: "Acquire", Kind: params.Int},
	{Name: "DetectorState", Kind: params.Int},
	{Name: "ImageMode", Kind: params.Int},
	{Name: "TriggerMode", Kind: params.Int},
	{Name: "NumImages", Kind: params.Int},
	{Name: "NumExposures", Kind: params.Int},
	{Name: "AcquireTime", Kind: params.Double},
	{Name: "AcquirePeriod", Kind: params.Double},
	{Name: "Gain", Kind: params.Double},
	{Name: "BinX", Kind: params.Int},
	{Name: "BinY", Kind: params.Int},
	{Name: "MinX", Kind: params.Int},
	{Name: "MinY", Kind: params.Int},
	{Name: "SizeX", Kind: params.Int},
	{Name: "SizeY", Kind: params.Int},
	{Name: "MaxSizeX", Kind: params.Int},
	{Name: "MaxSizeY", Kind: params.Int},
	{Name: "ImageSizeX", Kind: params.Int},
	{Name: "ImageSizeY", Kind: params.Int},
	{Name: "ImageSize", Kind: params.Int},
	{Name: "DataType", Kind: params.Int},
	{Name: "ImageCounter", Kind: params.Int},
	{Name: "AutoSave", Kind: params.Int},
	{Name: "WriteFile", Kind: params.Int},
	{Name: "FullFileName", Kind: params.String},
	{Name: "ReadStats", Kind: params.Int},
	{Name: "BadFrames", Kind: params.Int},
	{Name: "StatDriverType", Kind: params.String},
	{Name: "StatFilterVersion", Kind: params.String},
	{Name: "StatFrameRate", Kind: params.Double},
	{Name: "StatFramesCompleted", Kind: params.Int},
	{Name: "StatFramesDropped", Kind: params.Int},
	{Name: "StatPacketsErroneous", Kind: params.Int},
	{Name: "StatPacketsMissed", Kind: params.Int},
	{Name: "StatPacketsReceived", Kind: params.Int},
	{Name: "StatPacketsRequested", Kind: params.Int},
	{Name: "StatPacketsResent", Kind: params.Int},
}

// AcquireMode is the logical acquisition mode.
type AcquireMode int

// the three logical acquisition modes.  The hardware's "Recorder" mode is
// aliased onto ModeMultiple on read-back.
const (
	ModeSingle AcquireMode = iota
	ModeMultiple
	ModeContinuous
)

// detector states published through the DetectorState parameter
const (
	StateIdle = iota
	StateAcquire
)

// TriggerModes is the fixed table of frame-start trigger modes, in
// hardware order.  The TriggerMode parameter is an index into this table;
// the strings are dictated by the vendor protocol.
var TriggerModes = []string{
	"Freerun",
	"SyncIn1",
	"SyncIn2",
	"SyncIn3",
	"SyncIn4",
	"FixedRate",
	"Software",
}
