package bus

// Fixed topics for domain-level derived state changes.
const (
	TopicNodeStatus   = "topology.node"
	TopicDeviceMetric = "metrics.device"
	TopicDeviceStatus = "metrics.status"
	TopicAlert        = "alerts.alert"
	TopicGlobalUpdate = "metrics.global"
)

// ConnState returns the state-change topic for a named connection.
func ConnState(name string) string {
	return "conn." + name + ".state"
}

// ConnMessage returns the inbound-envelope topic for a named connection.
func ConnMessage(name string) string {
	return "conn." + name + ".message"
}
