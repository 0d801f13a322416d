package chat

import "fmt"

// ServerName prefixes announcements generated by the server itself.
const ServerName = "<Server>"

// JoinAnnouncement is broadcast once a user has been admitted.
func JoinAnnouncement(username string, online int) string {
	return fmt.Sprintf("%s: %s connected - %d users online", ServerName, username, online)
}

// LeaveAnnouncement is broadcast after a user has been removed.
func LeaveAnnouncement(username string, online int) string {
	return fmt.Sprintf("%s: %s disconnected from the server - %d users online", ServerName, username, online)
}

// ChatLine formats a message sent by username.
func ChatLine(username, text string) string {
	return fmt.Sprintf("<%s>: %s", username, text)
}
