package types

// Component identifies one of the engine's components. The set is closed:
// dispatch over components switches exhaustively on these constants, and an
// unknown value is a configuration error, never silently routed.
type Component string

const (
	ComponentSystem     Component = "system"
	ComponentResources  Component = "resources"
	ComponentFrames     Component = "frames"
	ComponentAnalyzer   Component = "analyzer"
	ComponentDiscovery  Component = "discovery"
	ComponentEnrichment Component = "enrichment"
)

// KnownComponents returns the closed component set in stable order.
func KnownComponents() []Component {
	return []Component{
		ComponentSystem,
		ComponentResources,
		ComponentFrames,
		ComponentAnalyzer,
		ComponentDiscovery,
		ComponentEnrichment,
	}
}

// Valid reports whether c is a member of the closed component set.
func (c Component) Valid() bool {
	switch c {
	case ComponentSystem, ComponentResources, ComponentFrames,
		ComponentAnalyzer, ComponentDiscovery, ComponentEnrichment:
		return true
	}
	return false
}

// Stage names a phase of staged initialization. Later stages declare the
// stages they require; a stage may only start once every declared
// prerequisite has completed.
type Stage string

const (
	StageCoreInfrastructure Stage = "core-infrastructure"
	StagePageDependent      Stage = "page-dependent"
	StageAdvancedFeatures   Stage = "advanced-features"
)

// SystemState is the orchestrator's lifecycle state.
type SystemState string

const (
	StateUninitialized SystemState = "uninitialized"
	StateInitializing  SystemState = "initializing"
	StateReady         SystemState = "ready"
	// StateFailed is terminal: the cached initialization error is re-raised
	// on every call until a fresh construction.
	StateFailed   SystemState = "failed"
	StateDisposed SystemState = "disposed"
)
