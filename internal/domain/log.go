package domain

// Keys of a log entry document, beside the reserved ones.
const (
	LogKeyDocID      = "docid"
	LogKeyDiff       = "diff"
	LogKeyTimestamp  = "timestamp"
	LogKeyUsername   = "username"
	LogKeyRemoteAddr = "remote_addr"
	LogKeyUserAgent  = "user_agent"

	LogKeyAttachmentsAdded   = "attachments_added"
	LogKeyAttachmentsDeleted = "attachments_deleted"
)

// Actor identifies who performed a save operation and from where.
// The zero value means an anonymous actor outside any request context;
// the audit writer then stamps the process name as the user agent.
type Actor struct {
	Username   string
	RemoteAddr string
	UserAgent  string
}

// Anonymous reports whether no acting user is known.
func (a Actor) Anonymous() bool {
	return a.Username == ""
}
