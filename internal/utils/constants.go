package utils

const (
	OrganizationName                      = "Patrol"
	CORSLowSecurityAllowedOriginLocalhost = "http://localhost:*"
)
