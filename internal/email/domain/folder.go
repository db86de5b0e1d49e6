package domain

// Folder is the local mailbox a message is shown in.
type Folder string

const (
	FolderInbox   Folder = "INBOX"
	FolderSent    Folder = "SENT"
	FolderDrafts  Folder = "DRAFTS"
	FolderArchive Folder = "ARCHIVE"
	FolderTrash   Folder = "TRASH"
	FolderSpam    Folder = "SPAM"
	FolderOutbox  Folder = "OUTBOX"
)

var folders = []Folder{FolderInbox, FolderSent, FolderDrafts, FolderArchive, FolderTrash, FolderSpam, FolderOutbox}

// ParseFolder validates a folder name.
func ParseFolder(s string) (Folder, bool) {
	for _, f := range folders {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// labelFolders is checked in order; the first label present wins.
var labelFolders = []struct {
	label  string
	folder Folder
}{
	{"TRASH", FolderTrash},
	{"SPAM", FolderSpam},
	{"DRAFT", FolderDrafts},
	{"SENT", FolderSent},
	{"INBOX", FolderInbox},
}

// FolderFromLabels maps provider system labels to a folder.
// Messages carrying none of the known labels are archived.
func FolderFromLabels(labels []string) Folder {
	if len(labels) == 0 {
		return FolderArchive
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	for _, lf := range labelFolders {
		if _, ok := set[lf.label]; ok {
			return lf.folder
		}
	}
	return FolderArchive
}
