package models

// DeviceConfigRecord is returned by GET /device-config/{deviceId}.
// The MQTT fields are already encrypted server side and are passed through untouched.
type DeviceConfigRecord struct {
	PublicKey             string `json:"publicKey"`
	EncryptedMqttUsername string `json:"encryptedMqttUsername"`
	EncryptedMqttPassword string `json:"encryptedMqttPassword"`
}

// DeviceConfigPayload is the downloadable device configuration document.
type DeviceConfigPayload struct {
	WifiSSID     string `json:"wifiSSID"`
	WifiPassword string `json:"wifiPassword"`
	MqttUsername string `json:"mqttUsername"`
	MqttPassword string `json:"mqttPassword"`
}

// Artifact describes where a device configuration document was delivered.
type Artifact struct {
	Name     string `json:"name"`
	Sink     string `json:"sink"`
	Location string `json:"location"`
	Size     int    `json:"size"`
}
