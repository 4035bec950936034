package util

// RedactPhone masks a phone number for logging, keeping only the last four digits.
func RedactPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
