package telemetry

// InitConfig is the one-shot startup payload the SDK reports describing
// how it was configured, mirroring the reference SDK's /metrics/config
// echo.
type InitConfig struct {
	InstanceID            string `json:"instanceID"`
	OperationMode         string `json:"operationMode"`
	StorageType           string `json:"storageType"`
	StreamingEnabled      bool   `json:"streamingEnabled"`
	ImpressionsQueueSize  int    `json:"impressionsQueueSize"`
	EventsQueueSize       int    `json:"eventsQueueSize"`
	ImpressionsMode       string `json:"impressionsMode"`
	RefreshRateFlags      int    `json:"featuresRefreshRate"`
	RefreshRateSegments   int    `json:"segmentsRefreshRate"`
	RefreshRateImpression int    `json:"impressionsRefreshRate"`
	RefreshRateEvent      int    `json:"eventsPushRate"`
	ActiveFactories       int    `json:"activeFactories"`
	RedundantFactories    int    `json:"redundantFactories"`
	TimeUntilReadyMs      int64  `json:"timeUntilReady"`
	TotalFlagSets         int    `json:"flagSetsTotal"`
	InvalidFlagSets       int    `json:"flagSetsInvalid"`
}
