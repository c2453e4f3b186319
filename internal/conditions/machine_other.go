//go:build !darwin

package conditions

func machineSerial() (string, error) {
	return "", nil
}

func osVersion() string {
	return ""
}
