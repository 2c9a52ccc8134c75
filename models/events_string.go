package models

func (AccessorLoadedEvent) String() string {
	return "LOADED"
}

func (AccessorInitializedEvent) String() string {
	return "INITIALIZED"
}

func (AccessorWrappedUpEvent) String() string {
	return "WRAPPEDUP"
}

func (AccessorErrorEvent) String() string {
	return "ERROR"
}

func (OutputSentEvent) String() string {
	return "OUTPUT"
}
