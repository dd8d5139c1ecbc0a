package ir

// Version constants for batch files and the engine.
const (
	// BatchVersion is the batch file schema version.
	BatchVersion = "1"

	// EngineVersion is the stagesync engine version.
	EngineVersion = "0.1.0"
)
