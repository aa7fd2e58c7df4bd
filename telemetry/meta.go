package telemetry

// Well-known metadata keys attached to an ExecMessage as the pipeline
// enriches it. Node configurations reference these names, so they are part
// of the chain-authoring contract.
const (
	// Resolution context, set by the consumer after mapping resolution
	MetaBindingID             = "bindingId"
	MetaConnectivityProfileID = "connectivityProfileId"
	MetaDeviceProfileID       = "deviceProfileId"
	MetaTwinID                = "twinId"
	MetaRootAssetID           = "rootAssetId"
	MetaTransportType         = "transportType"

	// Chain selection context
	MetaChainID     = "chainId"
	MetaChainSource = "chainSource"

	// Set by the ingress node when the chain starts
	MetaIngestedAt = "ingestedAt"

	// Filter provenance: name of the node that dropped the message
	MetaDroppedBy = "droppedBy"
)
