package domain

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestFolderFromLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   Folder
	}{
		{"empty", nil, FolderArchive},
		{"inbox", []string{"INBOX", "UNREAD"}, FolderInbox},
		{"trash beats inbox", []string{"INBOX", "TRASH"}, FolderTrash},
		{"spam beats draft", []string{"DRAFT", "SPAM"}, FolderSpam},
		{"draft maps to drafts", []string{"DRAFT"}, FolderDrafts},
		{"draft beats sent", []string{"SENT", "DRAFT"}, FolderDrafts},
		{"sent beats inbox", []string{"INBOX", "SENT"}, FolderSent},
		{"user labels only", []string{"Label_12", "IMPORTANT"}, FolderArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, FolderFromLabels(tt.labels), tt.want)
		})
	}
}

func TestFolderFromLabelsIsPure(t *testing.T) {
	labels := []string{"SENT", "INBOX"}
	first := FolderFromLabels(labels)
	second := FolderFromLabels(labels)
	be.Equal(t, first, second)
	be.Equal(t, labels, []string{"SENT", "INBOX"})
}

func TestParseFolder(t *testing.T) {
	f, ok := ParseFolder("SPAM")
	be.True(t, ok)
	be.Equal(t, f, FolderSpam)

	_, ok = ParseFolder("spam")
	be.True(t, !ok)
}
