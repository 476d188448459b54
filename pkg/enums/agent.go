package enums

import "fmt"

// AgentStatus is the field availability of an agent.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "AVAILABLE"
	AgentStatusOffline   AgentStatus = "OFFLINE"
	AgentStatusOnDuty    AgentStatus = "ON_DUTY"
)

var validAgentStatuses = []AgentStatus{
	AgentStatusAvailable,
	AgentStatusOffline,
	AgentStatusOnDuty,
}

func (s AgentStatus) String() string {
	return string(s)
}

func (s AgentStatus) IsValid() bool {
	for _, candidate := range validAgentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseAgentStatus(value string) (AgentStatus, error) {
	for _, candidate := range validAgentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent status %q", value)
}

// VehicleType is the vehicle an agent drives on pickups.
type VehicleType string

const (
	VehicleTypeBike  VehicleType = "BIKE"
	VehicleTypeAuto  VehicleType = "AUTO"
	VehicleTypeVan   VehicleType = "VAN"
	VehicleTypeTruck VehicleType = "TRUCK"
)

var validVehicleTypes = []VehicleType{
	VehicleTypeBike,
	VehicleTypeAuto,
	VehicleTypeVan,
	VehicleTypeTruck,
}

func (v VehicleType) String() string {
	return string(v)
}

func (v VehicleType) IsValid() bool {
	for _, candidate := range validVehicleTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

func ParseVehicleType(value string) (VehicleType, error) {
	for _, candidate := range validVehicleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vehicle type %q", value)
}
