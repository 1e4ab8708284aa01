// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
	SecurityAdmin                       // Access token with admin or superadmin role
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	"Health":  SecurityPublic,
	"Metrics": SecurityPublic,

	// gRPC probes
	"/grpc.health.v1.Health/Check": SecurityPublic,
	"/grpc.health.v1.Health/List":  SecurityPublic,
	"/grpc.health.v1.Health/Watch": SecurityPublic,

	// Retailer facing
	"ExecuteTransaction":    SecurityAccess,
	"GetTransaction":        SecurityAccess,
	"GetBalance":            SecurityAccess,
	"ListLedger":            SecurityAccess,
	"ListCommissionRecords": SecurityAccess,

	// Commission configuration
	"CreatePlan":           SecurityAdmin,
	"ListPlans":            SecurityAdmin,
	"SaveRate":             SecurityAdmin,
	"AssignPlan":           SecurityAdmin,
	"DistributeCommission": SecurityAdmin,
	"ReconcileWallet":      SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityAdmin
}
