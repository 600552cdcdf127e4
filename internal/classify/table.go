package classify

// Raw error strings produced by the broker's SSH gateway.
const (
	ErrAuthentication       = "failed to authenticate to device"
	ErrUnsupportedPublicKey = "connections using public keys are not permitted when the agent version is 0.5.x or earlier"
	ErrFindDevice           = "failed to find the device"
	ErrDeviceOffline        = "device is offline"
	ErrDialDevice           = "failed to dial to connect to server"
	ErrConnectDevice        = "failed to connect to device"
	ErrFindPublicKey        = "failed to get the public key from the server"
	ErrEvaluatePublicKey    = "failed to evaluate the public key"
	ErrForbiddenPublicKey   = "failed to use the public key for this action"
	ErrDataPublicKey        = "failed to parse the public key data"
	ErrSignaturePublicKey   = "failed to decode the public key signature"
	ErrVerifyPublicKey      = "failed to verify the public key"
	ErrFirewallBlock        = "you cannot connect to this device because a firewall rule block your connection"
	ErrRequestPty           = "failed to request a pty on device"
	ErrSessionLimit         = "the session limit for this namespace has been reached"
	ErrNamespaceNotFound    = "failed to get the namespace"
)

const (
	titleFailed = "Connection failed"

	// DevicePlaceholder is substituted with the failing session's device uid.
	DevicePlaceholder = ":deviceUid"

	targetDevice       = "/devices/" + DevicePlaceholder
	targetDevices      = "/devices"
	targetPublicKeys   = "/sshkeys/public-keys"
	targetFirewall     = "/firewall/rules"
	targetNamespace    = "/settings/namespace"
	targetSubscription = "/settings/billing"
)

type entry struct {
	message   string
	reconnect bool
	hints     []string
	links     []Link
}

var table = map[string]entry{
	ErrAuthentication: {
		message:   "The username or password is incorrect.",
		reconnect: true,
		hints: []string{
			"Check the username and password and try again.",
			"Make sure the user exists on the device.",
		},
	},
	ErrUnsupportedPublicKey: {
		message:   "The agent on this device is too old to accept public key authentication.",
		reconnect: true,
		hints: []string{
			"Connect with a password instead.",
			"Update the agent on the device to use public keys.",
		},
		links: []Link{{Label: "Device details", Target: targetDevice}},
	},
	ErrFindDevice: {
		message: "The device could not be found.",
		hints:   []string{"The device may have been removed or renamed."},
		links:   []Link{{Label: "Devices", Target: targetDevices}},
	},
	ErrDeviceOffline: {
		message: "The device is offline.",
		hints:   []string{"Check that the device is powered on and the agent is running."},
		links:   []Link{{Label: "Device details", Target: targetDevice}},
	},
	ErrDialDevice: {
		message: "The server could not reach the device agent.",
		hints: []string{
			"Check that the agent is running on the device.",
			"Check the device's network connection.",
		},
		links: []Link{{Label: "Device details", Target: targetDevice}},
	},
	ErrConnectDevice: {
		message: "The connection to the device could not be established.",
		hints:   []string{"Check that the SSH server on the device accepts connections."},
		links:   []Link{{Label: "Device details", Target: targetDevice}},
	},
	ErrFindPublicKey: {
		message: "No public key matches the private key used for this connection.",
		hints:   []string{"Add the public key to your namespace before connecting."},
		links:   []Link{{Label: "Public keys", Target: targetPublicKeys}},
	},
	ErrEvaluatePublicKey: {
		message: "The public key could not be evaluated for this device.",
		hints:   []string{"Check the key's filter rules."},
		links:   []Link{{Label: "Public keys", Target: targetPublicKeys}},
	},
	ErrForbiddenPublicKey: {
		message: "This public key is not allowed to connect to this device.",
		hints:   []string{"Check the key's hostname, tag and username filters."},
		links:   []Link{{Label: "Public keys", Target: targetPublicKeys}},
	},
	ErrDataPublicKey: {
		message: "The public key data is invalid.",
		hints:   []string{"Re-add the public key in a supported format."},
		links:   []Link{{Label: "Public keys", Target: targetPublicKeys}},
	},
	ErrSignaturePublicKey: {
		message: "The key signature could not be decoded.",
	},
	ErrVerifyPublicKey: {
		message: "The key signature could not be verified.",
		hints:   []string{"Make sure the private key matches a registered public key."},
		links:   []Link{{Label: "Public keys", Target: targetPublicKeys}},
	},
	ErrFirewallBlock: {
		message: "A firewall rule is blocking the connection to this device.",
		hints:   []string{"Review the firewall rules that apply to this device."},
	},
	ErrRequestPty: {
		message: "The device refused to allocate a terminal.",
		hints:   []string{"Check the SSH server configuration on the device."},
	},
	ErrSessionLimit: {
		message: "Too many sessions are open in this namespace.",
		hints:   []string{"Close an existing session and try again."},
		links:   []Link{{Label: "Subscription", Target: targetSubscription}},
	},
	ErrNamespaceNotFound: {
		message: "The namespace for this device could not be loaded.",
		links:   []Link{{Label: "Namespace settings", Target: targetNamespace}},
	},
}
