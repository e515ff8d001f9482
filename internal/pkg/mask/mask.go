// Package mask hides contact addresses before they reach a log line.
package mask

import "strings"

// Destination masks an email (j***@example.com) or phone number (***1234).
func Destination(dest string) string {
	if at := strings.LastIndexByte(dest, '@'); at >= 0 {
		return Email(dest)
	}
	return Phone(dest)
}

func Email(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}

func Phone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
