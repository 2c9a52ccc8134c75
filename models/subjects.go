package models

import "fmt"

const (
	LogAPIPrefix          = "$ACCESSOR.logs"
	EventAPIPrefix        = "$ACCESSOR.events"
	HostServicesPrefix    = "accessorint"
	HostServicesRPCFilter = HostServicesPrefix + ".*.rpc.*.*.*.*"
)

func LogSubject(hostId, stream string) string {
	return fmt.Sprintf("%s.%s.%s", LogAPIPrefix, hostId, stream)
}

func EventSubject(from, event string) string {
	return fmt.Sprintf("%s.%s.%s", EventAPIPrefix, from, event)
}

// HostServiceSubject is accessorint.{hostId}.rpc.{namespace}.{accessor}.{service}.{method}
func HostServiceSubject(hostId, namespace, accessor, service, method string) string {
	return fmt.Sprintf("%s.%s.rpc.%s.%s.%s.%s", HostServicesPrefix, hostId, namespace, accessor, service, method)
}

const ControlAPIPrefix = "$ACCESSOR.control"

func HeartbeatSubject(hostId string) string {
	return fmt.Sprintf("%s.%s.HEARTBEAT", EventAPIPrefix, hostId)
}

func PingSubject(hostId string) string {
	return fmt.Sprintf("%s.%s.PING", ControlAPIPrefix, hostId)
}

func InfoSubject(hostId string) string {
	return fmt.Sprintf("%s.%s.INFO", ControlAPIPrefix, hostId)
}

func ProvideSubject(hostId string) string {
	return fmt.Sprintf("%s.%s.PROVIDE", ControlAPIPrefix, hostId)
}
