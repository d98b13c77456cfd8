package constants

// Backend endpoints.
const (
	LoginPath        = "/authentication/login"
	RefreshPath      = "/authentication/refresh"
	LogoutPath       = "/authentication/logout"
	DeviceConfigPath = "/device-config/%s"

	SmartMetersPath  = "/smart-meters"
	SmartMeterPath   = "/smart-meters/%s"
	PoliciesPath     = "/policies"
	ContractsPath    = "/contracts"
	MeasurementsPath = "/smart-meters/%s/measurements"
)

// DefaultSignInRoute is where users are sent once their session ends.
const DefaultSignInRoute = "/sign-in"

// DefaultDeviceConfigFileName is the name of the exported device configuration.
const DefaultDeviceConfigFileName = "device-config.json"
