package constants

// Device configuration delivery sinks
const (
	// SinkFile writes the document to the local file system
	SinkFile = "file"
	// SinkS3 uploads the document to object storage and returns a presigned URL
	SinkS3 = "s3"
	// SinkMQTT publishes the document to the device provisioning topic
	SinkMQTT = "mqtt"
)

// Middleware names
const (
	RequestIDMiddleware = "request_id"
	RateLimitMiddleware = "rate_limit"
	BearerMiddleware    = "bearer"
)
